package core

import (
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/paulmach/orb/maptile"
)

// TileRequest is the tile address shared by the tile tools. Either Data
// or all of Z, X and Y must be set.
type TileRequest struct {
	Z    *int   `json:"z,omitempty"`
	X    *int   `json:"x,omitempty"`
	Y    *int   `json:"y,omitempty"`
	Data string `json:"data,omitempty"`
}

// Inline reports whether the request carries its own tile bytes.
func (r TileRequest) Inline() bool { return r.Data != "" }

// Tile validates the z/x/y address.
func (r TileRequest) Tile() (maptile.Tile, error) {
	if r.Z == nil || r.X == nil || r.Y == nil {
		return maptile.Tile{}, NewError(ErrMissingParameter, "z, x and y are required unless data is given").
			WithSuggestions("Pass z, x and y of a tile", "Pass base64 tile bytes as data")
	}
	return ValidateTile(*r.Z, *r.X, *r.Y)
}

// Bytes decodes the inline tile data.
func (r TileRequest) Bytes() ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(r.Data)
	if err != nil {
		return nil, NewValidationError(ErrInvalidParameter, fmt.Sprintf("data is not valid base64: %v", err))
	}
	return b, nil
}

// ValidatePage clamps a feature page to count features and the
// factory limit.
func ValidatePage(offset, limit, count, maxLimit int) (int, int, error) {
	if offset < 0 {
		return 0, 0, NewValidationError(ErrInvalidParameter, fmt.Sprintf("offset must not be negative, got %d", offset))
	}
	if limit <= 0 || (maxLimit > 0 && limit > maxLimit) {
		limit = maxLimit
	}
	if offset > count {
		offset = count
	}
	end := offset + limit
	if end > count || limit <= 0 {
		end = count
	}
	return offset, end, nil
}

// TileWithLog validates the tile address and logs any errors
func TileWithLog(r TileRequest, logger *slog.Logger) (maptile.Tile, error) {
	id, err := r.Tile()
	if err != nil {
		logger.Error("invalid tile address", "error", err)
	}
	return id, err
}
