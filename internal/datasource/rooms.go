package datasource

import (
	"context"
	"strings"

	"github.com/tidwall/gjson"

	"sac/internal/models"
)

// Rooms lists /salles.awp. The envelope data is either the list itself or
// an object holding it under "salles".
func (c *Client) Rooms(ctx context.Context) ([]models.RoomEntry, error) {
	data, err := c.fetch(ctx, pathSalles, nil)
	if err != nil {
		return nil, err
	}
	list := data
	if !list.IsArray() {
		list = data.Get("salles")
	}
	var out []models.RoomEntry
	list.ForEach(func(_, s gjson.Result) bool {
		out = append(out, models.RoomEntry{
			ID:      s.Get("id").String(),
			Code:    s.Get("code").String(),
			Libelle: s.Get("libelle").String(),
		})
		return true
	})
	return out, nil
}

// LookupRoom resolves a tap token to a room by id, code or label. It
// returns nil, nil when no room matches.
func (c *Client) LookupRoom(ctx context.Context, label string) (*models.RoomEntry, error) {
	rooms, err := c.Rooms(ctx)
	if err != nil {
		return nil, err
	}
	return findRoom(rooms, label), nil
}

func findRoom(rooms []models.RoomEntry, label string) *models.RoomEntry {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil
	}
	for i := range rooms {
		if rooms[i].ID == label {
			return &rooms[i]
		}
	}
	for i := range rooms {
		if strings.EqualFold(rooms[i].Code, label) || strings.EqualFold(rooms[i].Libelle, label) {
			return &rooms[i]
		}
	}
	return nil
}
