package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/pschwagler/beach-kings-sub002/pkg/data"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// SQLStore persists state in SQLite or PostgreSQL through database/sql
type SQLStore struct {
	db       *sql.DB
	postgres bool
}

// OpenSQL opens the configured SQL database, applies the embedded migrations and returns a
// store bound to it
func OpenSQL(ctx context.Context, config data.DatabaseConfig) (*SQLStore, error) {
	var (
		db  *sql.DB
		err error
	)

	switch config.Driver {
	case data.DriverSQLite:
		if config.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
				return nil, fmt.Errorf("error creating database directory: %w", err)
			}
		}
		db, err = sql.Open("sqlite3", sqliteDSN(config.Path))
		if err == nil {
			// SQLite allows one writer; a single connection keeps transactions from failing
			// with SQLITE_BUSY and keeps ":memory:" databases shared.
			db.SetMaxOpenConns(1)
		}
	case data.DriverPostgres:
		db, err = sql.Open("pgx", config.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", config.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	if err := runMigrations(db, config.Driver); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error running migrations: %w", err)
	}

	return &SQLStore{db: db, postgres: config.Driver == data.DriverPostgres}, nil
}

// sqliteDSN enables foreign keys and a busy timeout unless the DSN already sets them
func sqliteDSN(path string) string {
	dsn := path
	for _, param := range []string{"_fk=1", "_busy_timeout=5000"} {
		name := strings.SplitN(param, "=", 2)[0] + "="
		if strings.Contains(dsn, name) {
			continue
		}
		if strings.Contains(dsn, "?") {
			dsn += "&" + param
		} else {
			dsn += "?" + param
		}
	}
	return dsn
}

// runMigrations applies the embedded migrations of the driver's dialect. A "no change" result
// is not an error.
func runMigrations(db *sql.DB, driver string) error {
	var (
		instance database.Driver
		dialect  string
		err      error
	)
	switch driver {
	case data.DriverPostgres:
		dialect = "postgres"
		instance, err = migratepgx.WithInstance(db, &migratepgx.Config{})
	default:
		dialect = "sqlite"
		instance, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
	}
	if err != nil {
		return fmt.Errorf("could not create migrate driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations/"+dialect)
	if err != nil {
		return fmt.Errorf("could not create source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, dialect, instance)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("could not read migration version: %w", err)
	}
	log.Debug().Str("dialect", dialect).Uint("version", version).Bool("dirty", dirty).Msg("database schema ready")
	return nil
}

// RunInTx runs fn in a database transaction, rolling back when fn fails or panics
func (s *SQLStore) RunInTx(ctx context.Context, fn func(Repository) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&sqlRepo{q: tx, postgres: s.postgres}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("error rolling back: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing: %w", err)
	}
	return nil
}

// View runs fn in a read-only transaction
func (s *SQLStore) View(ctx context.Context, fn func(Repository) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	return fn(&sqlRepo{q: tx, postgres: s.postgres, readOnly: true})
}

// Close closes the database
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// querier is the subset of *sql.DB and *sql.Tx used by repositories
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqlRepo struct {
	q        querier
	postgres bool
	readOnly bool
}

// rebind rewrites ? placeholders into $n for PostgreSQL
func (r *sqlRepo) rebind(query string) string {
	if !r.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (r *sqlRepo) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if r.readOnly {
		return nil, ErrReadOnly
	}
	return r.q.ExecContext(ctx, r.rebind(query), args...)
}

func (r *sqlRepo) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return r.q.QueryContext(ctx, r.rebind(query), args...)
}

func (r *sqlRepo) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return r.q.QueryRowContext(ctx, r.rebind(query), args...)
}

// isUniqueViolation reports whether err is a primary key or unique constraint failure
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func (r *sqlRepo) CreatePlayer(ctx context.Context, player data.Player) error {
	if err := player.Validate(); err != nil {
		return err
	}
	if player.CreatedAt.IsZero() {
		player.CreatedAt = time.Now().UTC()
	}
	_, err := r.exec(ctx, `INSERT INTO players (id, name, created_at) VALUES (?, ?, ?)`,
		player.ID, player.Name, toNanos(player.CreatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("player %s: %w", player.ID, ErrAlreadyExists)
	}
	return err
}

func (r *sqlRepo) GetPlayer(ctx context.Context, id string) (data.Player, error) {
	var (
		player  data.Player
		created int64
	)
	err := r.queryRow(ctx, `SELECT id, name, created_at FROM players WHERE id = ?`, id).
		Scan(&player.ID, &player.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return data.Player{}, fmt.Errorf("player %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return data.Player{}, err
	}
	player.CreatedAt = fromNanos(created)
	return player, nil
}

func (r *sqlRepo) ListPlayers(ctx context.Context) ([]data.Player, error) {
	rows, err := r.query(ctx, `SELECT id, name, created_at FROM players ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var players []data.Player
	for rows.Next() {
		var (
			p       data.Player
			created int64
		)
		if err := rows.Scan(&p.ID, &p.Name, &created); err != nil {
			return nil, err
		}
		p.CreatedAt = fromNanos(created)
		players = append(players, p)
	}
	return players, rows.Err()
}

const globalStatsColumns = `player_id, current_rating, wins, losses, version`

func scanGlobalStats(scan func(...any) error) (data.GlobalStats, error) {
	var stats data.GlobalStats
	err := scan(&stats.PlayerID, &stats.CurrentRating, &stats.Wins, &stats.Losses, &stats.Version)
	return stats, err
}

func (r *sqlRepo) GetGlobalStats(ctx context.Context, playerID string) (data.GlobalStats, error) {
	stats, err := scanGlobalStats(r.queryRow(ctx,
		`SELECT `+globalStatsColumns+` FROM global_stats WHERE player_id = ?`, playerID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return data.GlobalStats{}, fmt.Errorf("global stats for %s: %w", playerID, ErrNotFound)
	}
	return stats, err
}

func (r *sqlRepo) SetGlobalStats(ctx context.Context, stats data.GlobalStats) (data.GlobalStats, error) {
	var (
		res sql.Result
		err error
	)
	if stats.Version == 0 {
		res, err = r.exec(ctx, `INSERT INTO global_stats (`+globalStatsColumns+`) VALUES (?, ?, ?, ?, 1)
			ON CONFLICT (player_id) DO NOTHING`,
			stats.PlayerID, stats.CurrentRating, stats.Wins, stats.Losses)
	} else {
		res, err = r.exec(ctx, `UPDATE global_stats SET current_rating = ?, wins = ?, losses = ?, version = version + 1
			WHERE player_id = ? AND version = ?`,
			stats.CurrentRating, stats.Wins, stats.Losses, stats.PlayerID, stats.Version)
	}
	if err != nil {
		return data.GlobalStats{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return data.GlobalStats{}, err
	}
	if n == 0 {
		return data.GlobalStats{}, fmt.Errorf("global stats for %s at version %d: %w", stats.PlayerID, stats.Version, ErrVersionConflict)
	}
	stats.Version++
	return stats, nil
}

func (r *sqlRepo) ListGlobalStats(ctx context.Context) ([]data.GlobalStats, error) {
	rows, err := r.query(ctx, `SELECT `+globalStatsColumns+` FROM global_stats ORDER BY player_id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var all []data.GlobalStats
	for rows.Next() {
		stats, err := scanGlobalStats(rows.Scan)
		if err != nil {
			return nil, err
		}
		all = append(all, stats)
	}
	return all, rows.Err()
}

const seasonColumns = `id, league_id, name, start_date, end_date, scoring_system, point_system`

func scanSeason(scan func(...any) error) (data.Season, error) {
	var (
		s          data.Season
		start, end string
		mode       string
	)
	if err := scan(&s.ID, &s.LeagueID, &s.Name, &start, &end, &mode, &s.PointSystem); err != nil {
		return data.Season{}, err
	}
	var err error
	if s.StartDate, err = data.ParseDate(start); err != nil {
		return data.Season{}, fmt.Errorf("season %s start date: %w", s.ID, err)
	}
	if s.EndDate, err = data.ParseDate(end); err != nil {
		return data.Season{}, fmt.Errorf("season %s end date: %w", s.ID, err)
	}
	s.ScoringSystem = data.ScoringMode(mode)
	return s, nil
}

func (r *sqlRepo) CreateSeason(ctx context.Context, s data.Season) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := validateScoring(s.ScoringSystem, s.PointSystem); err != nil {
		return err
	}
	_, err := r.exec(ctx, `INSERT INTO seasons (`+seasonColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.LeagueID, s.Name, data.FormatDate(s.StartDate), data.FormatDate(s.EndDate),
		string(s.ScoringSystem), s.PointSystem)
	if isUniqueViolation(err) {
		return fmt.Errorf("season %s: %w", s.ID, ErrAlreadyExists)
	}
	return err
}

func (r *sqlRepo) GetSeason(ctx context.Context, id string) (data.Season, error) {
	s, err := scanSeason(r.queryRow(ctx, `SELECT `+seasonColumns+` FROM seasons WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return data.Season{}, fmt.Errorf("season %s: %w", id, ErrNotFound)
	}
	return s, err
}

func (r *sqlRepo) ListSeasons(ctx context.Context) ([]data.Season, error) {
	rows, err := r.query(ctx, `SELECT `+seasonColumns+` FROM seasons ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var seasons []data.Season
	for rows.Next() {
		s, err := scanSeason(rows.Scan)
		if err != nil {
			return nil, err
		}
		seasons = append(seasons, s)
	}
	return seasons, rows.Err()
}

func (r *sqlRepo) UpdateSeasonScoring(ctx context.Context, seasonID string, mode data.ScoringMode, pointSystem string) error {
	if err := validateScoring(mode, pointSystem); err != nil {
		return err
	}
	res, err := r.exec(ctx, `UPDATE seasons SET scoring_system = ?, point_system = ? WHERE id = ?`,
		string(mode), pointSystem, seasonID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("season %s: %w", seasonID, ErrNotFound)
	}
	return nil
}

const seasonStatsColumns = `player_id, season_id, mode, points, rating, wins, losses, matches_played`

func scanSeasonStats(scan func(...any) error) (data.SeasonStats, error) {
	var (
		s    data.SeasonStats
		mode string
	)
	err := scan(&s.PlayerID, &s.SeasonID, &mode, &s.Points, &s.Rating, &s.Wins, &s.Losses, &s.MatchesPlayed)
	s.Mode = data.ScoringMode(mode)
	return s, err
}

func (r *sqlRepo) GetSeasonStats(ctx context.Context, playerID, seasonID string) (data.SeasonStats, error) {
	stats, err := scanSeasonStats(r.queryRow(ctx,
		`SELECT `+seasonStatsColumns+` FROM season_stats WHERE season_id = ? AND player_id = ?`, seasonID, playerID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return data.SeasonStats{}, fmt.Errorf("season stats for %s in %s: %w", playerID, seasonID, ErrNotFound)
	}
	return stats, err
}

func (r *sqlRepo) UpsertSeasonStats(ctx context.Context, stats data.SeasonStats) error {
	_, err := r.exec(ctx, `INSERT INTO season_stats (`+seasonStatsColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (season_id, player_id) DO UPDATE SET
			mode = excluded.mode,
			points = excluded.points,
			rating = excluded.rating,
			wins = excluded.wins,
			losses = excluded.losses,
			matches_played = excluded.matches_played`,
		stats.PlayerID, stats.SeasonID, string(stats.Mode), stats.Points, stats.Rating,
		stats.Wins, stats.Losses, stats.MatchesPlayed)
	return err
}

func (r *sqlRepo) ListSeasonStats(ctx context.Context, seasonID string) ([]data.SeasonStats, error) {
	rows, err := r.query(ctx,
		`SELECT `+seasonStatsColumns+` FROM season_stats WHERE season_id = ? ORDER BY player_id`, seasonID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var all []data.SeasonStats
	for rows.Next() {
		stats, err := scanSeasonStats(rows.Scan)
		if err != nil {
			return nil, err
		}
		all = append(all, stats)
	}
	return all, rows.Err()
}

func (r *sqlRepo) ResetSeasonStats(ctx context.Context, seasonID string) error {
	_, err := r.exec(ctx, `DELETE FROM season_stats WHERE season_id = ?`, seasonID)
	return err
}

func (r *sqlRepo) CreateMatch(ctx context.Context, match data.Match) error {
	if r.readOnly {
		return ErrReadOnly
	}
	if _, err := r.GetSeason(ctx, match.SeasonID); err != nil {
		return fmt.Errorf("season of match %s: %w", match.ID, err)
	}
	if match.CreatedAt.IsZero() {
		match.CreatedAt = time.Now().UTC()
	}

	_, err := r.exec(ctx, `INSERT INTO matches
		(id, season_id, occurred_at, team_a_score, team_b_score, ranked_intent, stats_applied, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		match.ID, match.SeasonID, toNanos(match.OccurredAt), nullInt(match.TeamAScore), nullInt(match.TeamBScore),
		match.RankedIntent, match.StatsApplied, toNanos(match.CreatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("match %s: %w", match.ID, ErrAlreadyExists)
	}
	if err != nil {
		return err
	}

	for position, slot := range match.Slots() {
		if _, err := r.exec(ctx, `INSERT INTO match_slots (match_id, position, slot_id, player_id) VALUES (?, ?, ?, ?)`,
			match.ID, position, slot.SlotID, nullString(slot.PlayerID)); err != nil {
			return fmt.Errorf("match %s slot %d: %w", match.ID, position, err)
		}
	}
	return nil
}

// selectMatches loads matches with their roster, one row per slot, in MatchKey order
func (r *sqlRepo) selectMatches(ctx context.Context, where string, args ...any) ([]data.Match, error) {
	rows, err := r.query(ctx, `SELECT m.id, m.season_id, m.occurred_at, m.team_a_score, m.team_b_score,
			m.ranked_intent, m.stats_applied, m.created_at, s.position, s.slot_id, s.player_id
		FROM matches m JOIN match_slots s ON s.match_id = m.id
		WHERE `+where+`
		ORDER BY m.occurred_at, m.id, s.position`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var matches []data.Match
	for rows.Next() {
		var (
			m                 data.Match
			occurred, created int64
			scoreA, scoreB    sql.NullInt64
			position          int
			slotID            string
			playerID          sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.SeasonID, &occurred, &scoreA, &scoreB,
			&m.RankedIntent, &m.StatsApplied, &created, &position, &slotID, &playerID); err != nil {
			return nil, err
		}

		if len(matches) == 0 || matches[len(matches)-1].ID != m.ID {
			m.OccurredAt = fromNanos(occurred)
			m.CreatedAt = fromNanos(created)
			if scoreA.Valid {
				m.TeamAScore = data.IntPtr(int(scoreA.Int64))
			}
			if scoreB.Valid {
				m.TeamBScore = data.IntPtr(int(scoreB.Int64))
			}
			matches = append(matches, m)
		}

		current := &matches[len(matches)-1]
		slot := data.RosterSlot{SlotID: slotID, PlayerID: playerID.String}
		if position < 2 {
			current.TeamA[position] = slot
		} else {
			current.TeamB[position-2] = slot
		}
	}
	return matches, rows.Err()
}

func (r *sqlRepo) GetMatch(ctx context.Context, id string) (data.Match, error) {
	matches, err := r.selectMatches(ctx, `m.id = ?`, id)
	if err != nil {
		return data.Match{}, err
	}
	if len(matches) == 0 {
		return data.Match{}, fmt.Errorf("match %s: %w", id, ErrNotFound)
	}
	return matches[0], nil
}

func (r *sqlRepo) ListMatchesForSeason(ctx context.Context, seasonID string) ([]data.Match, error) {
	return r.selectMatches(ctx, `m.season_id = ?`, seasonID)
}

func (r *sqlRepo) ListMatchesReferencingSlot(ctx context.Context, slotID string) ([]data.Match, error) {
	return r.selectMatches(ctx, `m.id IN (SELECT match_id FROM match_slots WHERE slot_id = ?)`, slotID)
}

func (r *sqlRepo) ListAppliedMatchesAfter(ctx context.Context, seasonID string, key data.MatchKey) ([]data.Match, error) {
	at := toNanos(key.OccurredAt)
	where := `m.stats_applied = ? AND (m.occurred_at > ? OR (m.occurred_at = ? AND m.id > ?))`
	args := []any{true, at, at, key.ID}
	if seasonID != "" {
		where += ` AND m.season_id = ?`
		args = append(args, seasonID)
	}
	return r.selectMatches(ctx, where, args...)
}

func (r *sqlRepo) BindSlot(ctx context.Context, slotID, playerID string) (int, error) {
	if r.readOnly {
		return 0, ErrReadOnly
	}

	rows, err := r.query(ctx, `SELECT match_id, player_id FROM match_slots WHERE slot_id = ?`, slotID)
	if err != nil {
		return 0, err
	}
	found := false
	for rows.Next() {
		var (
			matchID string
			bound   sql.NullString
		)
		if err := rows.Scan(&matchID, &bound); err != nil {
			_ = rows.Close()
			return 0, err
		}
		found = true
		if bound.String != "" && bound.String != playerID {
			_ = rows.Close()
			return 0, fmt.Errorf("slot %s bound to %s in match %s: %w", slotID, bound.String, matchID, ErrSlotAlreadyBound)
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, err
	}
	_ = rows.Close()
	if !found {
		return 0, fmt.Errorf("slot %s: %w", slotID, ErrNotFound)
	}

	res, err := r.exec(ctx, `UPDATE match_slots SET player_id = ? WHERE slot_id = ? AND (player_id IS NULL OR player_id = '')`,
		playerID, slotID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *sqlRepo) SetStatsApplied(ctx context.Context, matchID string, applied bool) error {
	res, err := r.exec(ctx, `UPDATE matches SET stats_applied = ? WHERE id = ?`, applied, matchID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("match %s: %w", matchID, ErrNotFound)
	}
	return nil
}

func (r *sqlRepo) RecordRatingChanges(ctx context.Context, changes []data.RatingChange) error {
	for _, c := range changes {
		_, err := r.exec(ctx, `INSERT INTO rating_changes
			(season_id, player_id, match_id, occurred_at, rating_before, rating_after)
			VALUES (?, ?, ?, ?, ?, ?)`,
			c.SeasonID, c.PlayerID, c.MatchID, toNanos(c.OccurredAt), c.Before, c.After)
		if isUniqueViolation(err) {
			return fmt.Errorf("rating change %s/%s/%s: %w", c.SeasonID, c.PlayerID, c.MatchID, ErrAlreadyExists)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *sqlRepo) RatingBefore(ctx context.Context, playerID, seasonID string, key data.MatchKey) (float64, bool, error) {
	at := toNanos(key.OccurredAt)
	var rating float64
	err := r.queryRow(ctx, `SELECT rating_after FROM rating_changes
		WHERE player_id = ? AND season_id = ? AND (occurred_at < ? OR (occurred_at = ? AND match_id < ?))
		ORDER BY occurred_at DESC, match_id DESC
		LIMIT 1`, playerID, seasonID, at, at, key.ID).Scan(&rating)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return rating, true, nil
}

func (r *sqlRepo) ListRatingChanges(ctx context.Context, playerID, seasonID string) ([]data.RatingChange, error) {
	rows, err := r.query(ctx, `SELECT match_id, player_id, season_id, occurred_at, rating_before, rating_after
		FROM rating_changes WHERE player_id = ? AND season_id = ?
		ORDER BY occurred_at, match_id`, playerID, seasonID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var changes []data.RatingChange
	for rows.Next() {
		var (
			c        data.RatingChange
			occurred int64
		)
		if err := rows.Scan(&c.MatchID, &c.PlayerID, &c.SeasonID, &occurred, &c.Before, &c.After); err != nil {
			return nil, err
		}
		c.OccurredAt = fromNanos(occurred)
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

func (r *sqlRepo) DeleteRatingChanges(ctx context.Context, seasonID string, matchIDs []string) error {
	for _, id := range matchIDs {
		if _, err := r.exec(ctx, `DELETE FROM rating_changes WHERE season_id = ? AND match_id = ?`, seasonID, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *sqlRepo) DeleteSeasonRatingChanges(ctx context.Context, seasonID string) error {
	if seasonID == "" {
		return errors.New("refusing to delete the global rating history")
	}
	_, err := r.exec(ctx, `DELETE FROM rating_changes WHERE season_id = ?`, seasonID)
	return err
}
