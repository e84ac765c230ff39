package spot

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/urbancamo/wota-data/internal/db"
)

type Store struct {
	db db.Querier
}

func NewStore(db db.Querier) *Store {
	return &Store{db: db}
}

const spotColumns = `
	s.id, s.datetime, s.call, s.wotaid, s.freqmode, s.comment, s.spotter,
	m.reference, m.name`

const spotFrom = `
	FROM spots s
	LEFT JOIN summits m ON m.wotaid = s.wotaid`

func (s *Store) InsertSpot(ctx context.Context, input Insert) (int, error) {
	var id int
	row := s.db.QueryRow(ctx, `
		INSERT INTO spots (datetime, call, wotaid, freqmode, comment, spotter)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id
	`, input.Datetime, input.Call, input.WotaID, input.FreqMode, input.Comment, input.Spotter)
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// RecentSpots returns up to limit spots, newest first.
func (s *Store) RecentSpots(ctx context.Context, limit int) ([]Spot, error) {
	rows, err := s.db.Query(ctx, `
		SELECT`+spotColumns+spotFrom+`
		ORDER BY s.id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSpots(rows)
}

// SpotsAfter returns all spots with id greater than afterID, oldest first.
func (s *Store) SpotsAfter(ctx context.Context, afterID int) ([]Spot, error) {
	rows, err := s.db.Query(ctx, `
		SELECT`+spotColumns+spotFrom+`
		WHERE s.id > $1
		ORDER BY s.id ASC
	`, afterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSpots(rows)
}

// ExistingSpotIDs reports which of the given ids are still present.
func (s *Store) ExistingSpotIDs(ctx context.Context, ids []int) (map[int]bool, error) {
	if len(ids) == 0 {
		return map[int]bool{}, nil
	}

	rows, err := s.db.Query(ctx, `SELECT id FROM spots WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	existing := make(map[int]bool, len(ids))
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		existing[id] = true
	}
	return existing, rows.Err()
}

// SpotExists checks for a row matching the (datetime, call, wotaid) tuple.
// The SOTA sync uses it to keep inserts idempotent across poll cycles.
func (s *Store) SpotExists(ctx context.Context, datetime time.Time, call string, wotaid int) (bool, error) {
	var count int
	row := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM spots
		WHERE datetime=$1 AND call=$2 AND wotaid=$3
	`, datetime, call, wotaid)
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) DeleteSpot(ctx context.Context, datetime time.Time, call string, wotaid int) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM spots
		WHERE datetime=$1 AND call=$2 AND wotaid=$3
	`, datetime, call, wotaid)
	return err
}

func (s *Store) Summit(ctx context.Context, wotaid int) (*SummitInfo, error) {
	var info SummitInfo
	row := s.db.QueryRow(ctx, `
		SELECT reference, name FROM summits WHERE wotaid=$1
	`, wotaid)
	if err := row.Scan(&info.Reference, &info.Name); err != nil {
		return nil, err
	}
	return &info, nil
}

// SotaMapping loads the static sotaid -> wotaid table for summits that
// exist in both numbering schemes.
func (s *Store) SotaMapping(ctx context.Context) (map[int]int, error) {
	rows, err := s.db.Query(ctx, `
		SELECT sotaid, wotaid FROM summits WHERE sotaid IS NOT NULL
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	mapping := map[int]int{}
	for rows.Next() {
		var sotaid, wotaid int
		if err := rows.Scan(&sotaid, &wotaid); err != nil {
			return nil, err
		}
		mapping[sotaid] = wotaid
	}
	return mapping, rows.Err()
}

func scanSpots(rows pgx.Rows) ([]Spot, error) {
	var spots []Spot
	for rows.Next() {
		var sp Spot
		var reference, name *string
		if err := rows.Scan(&sp.ID, &sp.Datetime, &sp.Call, &sp.WotaID, &sp.FreqMode, &sp.Comment, &sp.Spotter, &reference, &name); err != nil {
			return nil, err
		}
		if reference != nil {
			sp.Summit = &SummitInfo{Reference: *reference}
			if name != nil {
				sp.Summit.Name = *name
			}
		}
		spots = append(spots, sp)
	}
	return spots, rows.Err()
}
