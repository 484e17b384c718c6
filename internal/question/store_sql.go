package question

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// SQLStore keeps questions in the tables created by internal/db.
type SQLStore struct {
	db    *sqlx.DB
	nowFn func() time.Time
}

func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, nowFn: time.Now}
}

type questionRow struct {
	ID               string `db:"id"`
	Seq              int64  `db:"seq"`
	Kind             string `db:"kind"`
	Text             string `db:"text"`
	Level            string `db:"level"`
	DataJSON         string `db:"data_json"`
	ChildOfAggregate bool   `db:"child_of_aggregate"`
	CreatedAt        int64  `db:"created_at"`
}

type imageRow struct {
	QuestionID string `db:"question_id"`
	Position   int    `db:"position"`
	Filename   string `db:"filename"`
	AltText    string `db:"alt_text"`
	BlobKey    string `db:"blob_key"`
}

type tagRow struct {
	QuestionID string `db:"question_id"`
	Tag        string `db:"tag"`
}

const questionCols = `id,seq,kind,text,level,data_json,child_of_aggregate,created_at`

func (s *SQLStore) CommitBatch(ctx context.Context, qs []Question, edges []Edge) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.GetContext(ctx, &seq, `SELECT COALESCE(MAX(seq),0) FROM questions`); err != nil {
		return err
	}
	now := s.nowFn().Unix()

	for _, q := range qs {
		var exists int
		err := tx.GetContext(ctx, &exists, tx.Rebind(`SELECT 1 FROM questions WHERE id=?`), q.ID)
		if err == nil {
			return fmt.Errorf("%w: id %s already exists", ErrConflict, q.ID)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		seq++
		data := ""
		if q.Data != nil && !q.Kind.IsAggregate() {
			b, err := json.Marshal(q.Data)
			if err != nil {
				return err
			}
			data = string(b)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO questions (`+questionCols+`)
			VALUES (?,?,?,?,?,?,?,?)`),
			q.ID, seq, string(q.Kind), q.Text, q.Level, data, q.ChildOfAggregate, now); err != nil {
			return err
		}
		if err := writeTags(ctx, tx, q.ID, NormalizeTags(q.Keywords), NormalizeTags(q.Subjects)); err != nil {
			return err
		}
		for i, img := range q.Images {
			if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO question_images (question_id,position,filename,alt_text,blob_key)
				VALUES (?,?,?,?,?)`), q.ID, i, img.Filename, img.AltText, img.Key); err != nil {
				return err
			}
		}
	}

	for _, e := range edges {
		var kind string
		if err := tx.GetContext(ctx, &kind, tx.Rebind(`SELECT kind FROM questions WHERE id=?`), e.ParentID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: parent %s", ErrNotFound, e.ParentID)
			}
			return err
		}
		if !Kind(kind).IsAggregate() {
			return fmt.Errorf("%w: %s cannot own children", ErrInvalid, e.ParentID)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO question_edges (parent_id,child_id,position) VALUES (?,?,?)`),
			e.ParentID, e.ChildID, e.Order); err != nil {
			return fmt.Errorf("%w: edge %s -> %s: %v", ErrConflict, e.ParentID, e.ChildID, err)
		}
	}
	return tx.Commit()
}

func writeTags(ctx context.Context, tx *sqlx.Tx, id string, keywords, subjects []string) error {
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM question_keywords WHERE question_id=?`), id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM question_subjects WHERE question_id=?`), id); err != nil {
		return err
	}
	for _, k := range keywords {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO question_keywords (question_id,keyword) VALUES (?,?)`), id, k); err != nil {
			return err
		}
	}
	for _, sub := range subjects {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO question_subjects (question_id,subject) VALUES (?,?)`), id, sub); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (Question, error) {
	var row questionRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+questionCols+` FROM questions WHERE id=?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Question{}, ErrNotFound
		}
		return Question{}, err
	}
	qs, err := s.hydrate(ctx, []questionRow{row})
	if err != nil {
		return Question{}, err
	}
	q := qs[0]
	if q.Kind.IsAggregate() {
		children, err := s.childEdges(ctx, []string{q.ID})
		if err != nil {
			return Question{}, err
		}
		q.Data, err = s.summaries(ctx, children)
		if err != nil {
			return Question{}, err
		}
	}
	return q, nil
}

func (s *SQLStore) List(ctx context.Context, opts ListOpts) ([]Question, error) {
	var where []string
	var args []any
	if opts.Kind != "" {
		where = append(where, "kind=?")
		args = append(args, string(opts.Kind))
	}
	if opts.TopLevel {
		where = append(where, "child_of_aggregate=?")
		args = append(args, false)
	}
	if opts.Keyword != "" {
		where = append(where, "id IN (SELECT question_id FROM question_keywords WHERE keyword=?)")
		args = append(args, strings.ToLower(opts.Keyword))
	}
	if opts.Subject != "" {
		where = append(where, "id IN (SELECT question_id FROM question_subjects WHERE subject=?)")
		args = append(args, strings.ToLower(opts.Subject))
	}
	q := `SELECT ` + questionCols + ` FROM questions`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY seq`
	limit := opts.Limit
	if limit <= 0 {
		limit = 1000
	}
	q += ` LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	var rows []questionRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, err
	}
	out, err := s.hydrate(ctx, rows)
	if err != nil {
		return nil, err
	}
	for i := range out {
		if !out[i].Kind.IsAggregate() {
			continue
		}
		edges, err := s.childEdges(ctx, []string{out[i].ID})
		if err != nil {
			return nil, err
		}
		if out[i].Data, err = s.summaries(ctx, edges); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLStore) Load(ctx context.Context, ids []string) (*Set, error) {
	var rows []questionRow
	if len(ids) == 0 {
		if err := s.db.SelectContext(ctx, &rows, `SELECT `+questionCols+` FROM questions ORDER BY seq`); err != nil {
			return nil, err
		}
	} else {
		q, args, err := sqlx.In(`SELECT `+questionCols+` FROM questions WHERE id IN (?) ORDER BY seq`, ids)
		if err != nil {
			return nil, err
		}
		if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
			return nil, err
		}
		if missing := missingIDs(ids, rows); len(missing) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, strings.Join(missing, ", "))
		}
	}

	var parents []string
	have := map[string]bool{}
	for _, r := range rows {
		have[r.ID] = true
		if Kind(r.Kind).IsAggregate() {
			parents = append(parents, r.ID)
		}
	}
	edges, err := s.childEdges(ctx, parents)
	if err != nil {
		return nil, err
	}
	var extra []string
	for _, e := range edges {
		if !have[e.ChildID] {
			extra = append(extra, e.ChildID)
			have[e.ChildID] = true
		}
	}
	if len(extra) > 0 {
		q, args, err := sqlx.In(`SELECT `+questionCols+` FROM questions WHERE id IN (?) ORDER BY seq`, extra)
		if err != nil {
			return nil, err
		}
		var more []questionRow
		if err := s.db.SelectContext(ctx, &more, s.db.Rebind(q), args...); err != nil {
			return nil, err
		}
		rows = append(rows, more...)
	}

	qs, err := s.hydrate(ctx, rows)
	if err != nil {
		return nil, err
	}
	return NewSet(qs, edges)
}

func missingIDs(ids []string, rows []questionRow) []string {
	got := make(map[string]bool, len(rows))
	for _, r := range rows {
		got[r.ID] = true
	}
	var out []string
	for _, id := range ids {
		if !got[id] {
			out = append(out, id)
		}
	}
	return out
}

func (s *SQLStore) childEdges(ctx context.Context, parents []string) ([]Edge, error) {
	if len(parents) == 0 {
		return nil, nil
	}
	q, args, err := sqlx.In(`SELECT e.parent_id, e.child_id, e.position FROM question_edges e
		JOIN questions c ON c.id = e.child_id
		WHERE e.parent_id IN (?) ORDER BY e.parent_id, e.position, c.seq`, parents)
	if err != nil {
		return nil, err
	}
	var edges []Edge
	if err := s.db.SelectContext(ctx, &edges, s.db.Rebind(q), args...); err != nil {
		return nil, err
	}
	return edges, nil
}

func (s *SQLStore) summaries(ctx context.Context, edges []Edge) (CaseStudyData, error) {
	out := CaseStudyData{}
	for _, e := range edges {
		var r questionRow
		if err := s.db.GetContext(ctx, &r, s.db.Rebind(`SELECT `+questionCols+` FROM questions WHERE id=?`), e.ChildID); err != nil {
			return nil, err
		}
		out = append(out, ChildSummary{ID: r.ID, Kind: Kind(r.Kind), Text: r.Text})
	}
	return out, nil
}

// hydrate decodes rows and attaches tags and images.
func (s *SQLStore) hydrate(ctx context.Context, rows []questionRow) ([]Question, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}

	keywords, err := s.tags(ctx, `SELECT question_id, keyword AS tag FROM question_keywords WHERE question_id IN (?) ORDER BY keyword`, ids)
	if err != nil {
		return nil, err
	}
	subjects, err := s.tags(ctx, `SELECT question_id, subject AS tag FROM question_subjects WHERE question_id IN (?) ORDER BY subject`, ids)
	if err != nil {
		return nil, err
	}
	q, args, err := sqlx.In(`SELECT question_id,position,filename,alt_text,blob_key FROM question_images
		WHERE question_id IN (?) ORDER BY question_id, position`, ids)
	if err != nil {
		return nil, err
	}
	var imgs []imageRow
	if err := s.db.SelectContext(ctx, &imgs, s.db.Rebind(q), args...); err != nil {
		return nil, err
	}
	images := map[string][]Image{}
	for _, im := range imgs {
		images[im.QuestionID] = append(images[im.QuestionID], Image{Filename: im.Filename, AltText: im.AltText, Key: im.BlobKey})
	}

	out := make([]Question, 0, len(rows))
	for _, r := range rows {
		kind := Kind(r.Kind)
		data, err := DecodeData(kind, json.RawMessage(r.DataJSON))
		if err != nil {
			return nil, fmt.Errorf("question %s: stored data: %w", r.ID, err)
		}
		out = append(out, Question{
			ID:               r.ID,
			Kind:             kind,
			Text:             r.Text,
			Level:            r.Level,
			Keywords:         keywords[r.ID],
			Subjects:         subjects[r.ID],
			Images:           images[r.ID],
			ChildOfAggregate: r.ChildOfAggregate,
			CreatedAt:        r.CreatedAt,
			Data:             data,
		})
	}
	return out, nil
}

func (s *SQLStore) tags(ctx context.Context, query string, ids []string) (map[string][]string, error) {
	q, args, err := sqlx.In(query, ids)
	if err != nil {
		return nil, err
	}
	var rows []tagRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, err
	}
	out := map[string][]string{}
	for _, r := range rows {
		out[r.QuestionID] = append(out[r.QuestionID], r.Tag)
	}
	return out, nil
}

func (s *SQLStore) UpdateTags(ctx context.Context, id string, keywords, subjects []string) (Question, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Question{}, err
	}
	defer tx.Rollback()
	var exists int
	if err := tx.GetContext(ctx, &exists, tx.Rebind(`SELECT 1 FROM questions WHERE id=?`), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Question{}, ErrNotFound
		}
		return Question{}, err
	}
	if err := writeTags(ctx, tx, id, NormalizeTags(keywords), NormalizeTags(subjects)); err != nil {
		return Question{}, err
	}
	if err := tx.Commit(); err != nil {
		return Question{}, err
	}
	return s.Get(ctx, id)
}

func (s *SQLStore) Delete(ctx context.Context, id string) ([]Image, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var kind string
	if err := tx.GetContext(ctx, &kind, tx.Rebind(`SELECT kind FROM questions WHERE id=?`), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	doomed := []string{id}
	if Kind(kind).IsAggregate() {
		var children []string
		if err := tx.SelectContext(ctx, &children, tx.Rebind(`SELECT child_id FROM question_edges WHERE parent_id=?`), id); err != nil {
			return nil, err
		}
		doomed = append(doomed, children...)
	}

	q, args, err := sqlx.In(`SELECT question_id,position,filename,alt_text,blob_key FROM question_images
		WHERE question_id IN (?) ORDER BY question_id, position`, doomed)
	if err != nil {
		return nil, err
	}
	var imgs []imageRow
	if err := tx.SelectContext(ctx, &imgs, tx.Rebind(q), args...); err != nil {
		return nil, err
	}

	for _, stmt := range []string{
		`DELETE FROM question_edges WHERE child_id IN (?) OR parent_id IN (?)`,
		`DELETE FROM question_keywords WHERE question_id IN (?)`,
		`DELETE FROM question_subjects WHERE question_id IN (?)`,
		`DELETE FROM question_images WHERE question_id IN (?)`,
		`DELETE FROM questions WHERE id IN (?)`,
	} {
		var (
			q    string
			args []any
			err  error
		)
		if strings.Count(stmt, "(?)") == 2 {
			q, args, err = sqlx.In(stmt, doomed, doomed)
		} else {
			q, args, err = sqlx.In(stmt, doomed)
		}
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(q), args...); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	out := make([]Image, 0, len(imgs))
	for _, im := range imgs {
		out = append(out, Image{Filename: im.Filename, AltText: im.AltText, Key: im.BlobKey})
	}
	return out, nil
}
