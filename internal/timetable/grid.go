package timetable

const slotsPerDay = ClosingHour - OpeningHour

type week [len(dayNames)][slotsPerDay]bool

// Grid tracks which (key, day, hour) cells are taken for one kind of resource.
// Eager grids only know the keys they were built with; lazy grids create a key
// the first time it is marked.
type Grid struct {
	lazy  bool
	cells map[string]*week
}

// NewEagerGrid builds a grid with every key pre-populated as free.
func NewEagerGrid(keys []string) *Grid {
	g := &Grid{cells: make(map[string]*week, len(keys))}
	for _, key := range keys {
		g.cells[key] = &week{}
	}
	return g
}

// NewLazyGrid builds an empty grid whose keys appear on first use.
func NewLazyGrid() *Grid {
	return &Grid{lazy: true, cells: make(map[string]*week)}
}

// IsFree reports whether every hour of the range is unoccupied for key on day.
func (g *Grid) IsFree(key string, day Day, hours []int) bool {
	if len(hours) == 0 || !day.Valid() {
		return false
	}
	w, ok := g.cells[key]
	if !ok {
		if !g.lazy {
			return false
		}
		for _, h := range hours {
			if !validHour(h) {
				return false
			}
		}
		return true
	}
	for _, h := range hours {
		if !validHour(h) || w[day][h-OpeningHour] {
			return false
		}
	}
	return true
}

// MarkOccupied sets every hour of the range as taken. Cells are never released.
func (g *Grid) MarkOccupied(key string, day Day, hours []int) {
	if !day.Valid() {
		return
	}
	w, ok := g.cells[key]
	if !ok {
		if !g.lazy {
			return
		}
		w = &week{}
		g.cells[key] = w
	}
	for _, h := range hours {
		if validHour(h) {
			w[day][h-OpeningHour] = true
		}
	}
}

// Has reports whether the key is known to the grid.
func (g *Grid) Has(key string) bool {
	_, ok := g.cells[key]
	return ok
}

// Occupancy pairs the room and professor grids of a single generation run.
type Occupancy struct {
	Rooms      *Grid
	Professors *Grid
}

// NewOccupancy prepares the room grid for every room up front; professors are
// added as they get scheduled.
func NewOccupancy(rooms []Room) *Occupancy {
	keys := make([]string, 0, len(rooms))
	for _, room := range rooms {
		keys = append(keys, room.RoomID)
	}
	return &Occupancy{
		Rooms:      NewEagerGrid(keys),
		Professors: NewLazyGrid(),
	}
}

// Available reports whether both the room and the professor are free.
func (o *Occupancy) Available(roomID, professorID string, day Day, hours []int) bool {
	return o.Rooms.IsFree(roomID, day, hours) && o.Professors.IsFree(professorID, day, hours)
}

// Commit books the range for the room and the professor together.
func (o *Occupancy) Commit(roomID, professorID string, day Day, hours []int) {
	o.Rooms.MarkOccupied(roomID, day, hours)
	o.Professors.MarkOccupied(professorID, day, hours)
}
