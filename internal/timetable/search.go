package timetable

// FindSlot looks for the first legal, unoccupied block for the section.
// Days are scanned first, then rooms in the supplied order, then start hours
// from the earliest. On a hit the block is committed to occ before returning.
func FindSlot(section Section, rooms []Room, days []Day, hours []int, occ *Occupancy) (Entry, bool) {
	candidates := windows(hours, section.CreditHours)
	if len(candidates) == 0 {
		return Entry{}, false
	}
	for _, day := range days {
		for _, room := range rooms {
			for _, block := range candidates {
				if !IsValidBlock(block) {
					continue
				}
				if !occ.Available(room.RoomID, section.ProfessorID, day, block) {
					continue
				}
				occ.Commit(room.RoomID, section.ProfessorID, day, block)
				return Entry{
					Section:      section,
					Day:          day,
					StartHour:    block[0],
					EndHour:      block[len(block)-1] + 1,
					RoomID:       room.RoomID,
					RoomName:     room.Name,
					RoomCapacity: room.Capacity,
				}, true
			}
		}
	}
	return Entry{}, false
}
