// README: Shared identifier and coordinate types.
package types

import "github.com/google/uuid"

type ID string

func NewID() ID {
	return ID(uuid.NewString())
}

// Point is a WGS84 coordinate in decimal degrees. Ranges are not validated.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
