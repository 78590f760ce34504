package mlb

import (
	"context"
	"encoding/json"
)

// Sport is an entry of the sports reference list.
type Sport struct {
	ID           int64  `json:"id"`
	Code         string `json:"code"`
	Link         string `json:"link"`
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation"`
	SortOrder    int64  `json:"sortOrder"`
	ActiveStatus bool   `json:"activeStatus"`
}

// GameType is an entry of the game types reference list, such as R for
// regular season.
type GameType struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// FetchSports fetches the list of sports.
func (c *Client) FetchSports(ctx context.Context) ([]Sport, error) {
	target := c.endpointURL("sports", nil)
	obj, err := c.fetchObject(ctx, target, "sports")
	if err != nil {
		return nil, err
	}

	var sports []Sport
	if err := json.Unmarshal(obj["sports"], &sports); err != nil {
		return nil, &DataShapeError{URL: target, Key: "sports"}
	}
	return sports, nil
}

// CheckSportID looks up a sport by id. The bool is false when the id is not
// in the sports list.
func (c *Client) CheckSportID(ctx context.Context, id int64) (*Sport, bool, error) {
	sports, err := c.FetchSports(ctx)
	if err != nil {
		return nil, false, err
	}
	for i := range sports {
		if sports[i].ID == id {
			return &sports[i], true, nil
		}
	}
	return nil, false, nil
}

// FetchGameTypes fetches the list of game types.
func (c *Client) FetchGameTypes(ctx context.Context) ([]GameType, error) {
	target := c.endpointURL("gameTypes", nil)
	body, err := c.fetch(ctx, target)
	if err != nil {
		return nil, err
	}

	var types []GameType
	if err := json.Unmarshal(body, &types); err != nil {
		return nil, &DataShapeError{URL: target, Key: "id"}
	}
	return types, nil
}
