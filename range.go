package s1st2md

// Range is the effective floor interval of an export run. Nil bounds are
// unbounded in that direction.
type Range struct {
	Start *int
	End   *int
}

// PageRange is the physical page interval to fetch, inclusive.
type PageRange struct {
	First int
	Last  int
}

// ResolveFloorRange maps the user's base floor bounds plus the optional
// output-file chunking window onto the effective floor interval.
//
// With chunking, the window shifts the start by whole files and, when an end
// file is given, caps the span at the stricter of the window-derived end and
// the base end. When the shifted start overshoots the base end, the range is
// clamped to empty (start = baseEnd+1) instead of being rejected.
func ResolveFloorRange(opts ExportOptions) Range {
	baseStart := 1
	if opts.StartFloor != nil {
		baseStart = *opts.StartFloor
	}
	baseEnd := opts.EndFloor

	effStart := baseStart
	effEnd := baseEnd

	if opts.PostsPerFile != nil && *opts.PostsPerFile > 0 {
		perFile := *opts.PostsPerFile
		fileStart := 1
		if opts.StartFile != nil {
			fileStart = *opts.StartFile
		}
		effStart = baseStart + (fileStart-1)*perFile

		var pagingEnd *int
		if opts.EndFile != nil {
			filesToTake := *opts.EndFile - fileStart + 1
			if filesToTake > 0 {
				end := effStart + filesToTake*perFile - 1
				pagingEnd = &end
			}
		}
		switch {
		case baseEnd != nil && pagingEnd != nil:
			if *baseEnd < *pagingEnd {
				effEnd = baseEnd
			} else {
				effEnd = pagingEnd
			}
		case baseEnd != nil:
			effEnd = baseEnd
		default:
			effEnd = pagingEnd
		}
	}

	if baseEnd != nil && effStart > *baseEnd {
		empty := *baseEnd + 1
		effStart = empty
	}

	start := effStart
	return Range{Start: &start, End: effEnd}
}

// PagesForRange maps a floor interval to the physical pages that contain it,
// given the site's fixed page size and the thread's total page count.
func PagesForRange(r Range, pageSize, totalPages int) PageRange {
	first := 1
	last := totalPages
	if r.Start != nil {
		first = (*r.Start-1)/pageSize + 1
		if first < 1 {
			first = 1
		}
	}
	if r.End != nil {
		last = (*r.End-1)/pageSize + 1
		if last > totalPages {
			last = totalPages
		}
	}
	return PageRange{First: first, Last: last}
}

// Contains reports whether a parsed floor number falls inside the range. A
// nil floor is kept only when no range was requested at all.
func (r Range) Contains(floor *int, rangeRequested bool) bool {
	if floor == nil {
		return !rangeRequested
	}
	if rangeRequested {
		if r.Start != nil && *floor < *r.Start {
			return false
		}
		if r.End != nil && *floor > *r.End {
			return false
		}
	}
	return true
}
