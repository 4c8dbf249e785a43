package model

import "sort"

// RevisionSnapshot is a point-in-time view of the remote metadata store's
// revision counters, keyed by member type then member name. It is never
// persisted standalone; a fresh snapshot is always compared against the
// watermark stored on a ScratchOrg.
type RevisionSnapshot map[string]map[string]int

// Counter returns the recorded counter for the given member, or -1 if the
// member has never been seen. -1 is the baseline: any non-negative counter
// compares greater.
func (s RevisionSnapshot) Counter(memberType, memberName string) int {
	if members, ok := s[memberType]; ok {
		if n, ok := members[memberName]; ok {
			return n
		}
	}
	return -1
}

// Set records a counter, allocating the inner map on first use.
func (s RevisionSnapshot) Set(memberType, memberName string, counter int) {
	members, ok := s[memberType]
	if !ok {
		members = make(map[string]int)
		s[memberType] = members
	}
	members[memberName] = counter
}

// ChangeSet groups changed member names by member type. Member types and
// names are kept in sorted order so the serialized form is stable.
type ChangeSet map[string][]string

// HasChanges reports whether any member is present.
func (c ChangeSet) HasChanges() bool {
	for _, names := range c {
		if len(names) > 0 {
			return true
		}
	}
	return false
}

// TotalMembers returns the number of members across all types.
func (c ChangeSet) TotalMembers() int {
	n := 0
	for _, names := range c {
		n += len(names)
	}
	return n
}

// DiffRevisions compares two snapshots and returns the members whose counter
// in new exceeds their counter in old (members unknown to old baseline at -1).
// Members absent from new are never reported; deletions are not detected by
// this mechanism. This is a monotonic-counter diff, not a content diff: a
// revert-then-redo cycle that raised the counter still reports the member
// even with no net content difference.
func DiffRevisions(old, new RevisionSnapshot) ChangeSet {
	changed := make(ChangeSet)

	types := make([]string, 0, len(new))
	for mt := range new {
		types = append(types, mt)
	}
	sort.Strings(types)

	for _, mt := range types {
		names := make([]string, 0, len(new[mt]))
		for mn := range new[mt] {
			names = append(names, mn)
		}
		sort.Strings(names)

		for _, mn := range names {
			if new[mt][mn] > old.Counter(mt, mn) {
				changed[mt] = append(changed[mt], mn)
			}
		}
	}

	return changed
}
