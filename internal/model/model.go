package model

import (
	"time"

	"timetable/internal/timetable"
)

// Course is a named weekly class slot as written in a course file or
// imported from an ICS feed.
type Course struct {
	Name string           `yaml:"name" json:"name"`
	Slot timetable.Weekly `yaml:"slot" json:"-"`

	// Source records where the course was loaded from (file path or ICS
	// source ID). It is not part of the course file format.
	Source string `yaml:"-" json:"source,omitempty"`
}

func (c Course) String() string { return c.Name }

// Windows converts courses to the resolver's labeled input. Labels point
// into courses, so duplicate names stay distinguishable.
func Windows(courses []Course) []timetable.Labeled[*Course] {
	out := make([]timetable.Labeled[*Course], 0, len(courses))
	for i := range courses {
		out = append(out, timetable.Labeled[*Course]{
			Label:  &courses[i],
			Window: courses[i].Slot,
		})
	}
	return out
}

// Occurrence is a single concrete class meeting.
type Occurrence struct {
	Course string `json:"course"`
	Source string `json:"source,omitempty"`

	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}
