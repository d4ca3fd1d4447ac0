package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/flowpbx/voiceswitch/internal/directory"
)

// directoryRepo implements DirectoryRepository.
type directoryRepo struct {
	db *DB
}

// NewDirectoryRepository creates a new DirectoryRepository.
func NewDirectoryRepository(db *DB) DirectoryRepository {
	return &directoryRepo{db: db}
}

// Replace deletes the stored tree and writes root in its place.
func (r *directoryRepo) Replace(ctx context.Context, root *directory.Facility) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning directory transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"dial_codes", "dial_trunks", "positions", "facilities"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	if root != nil {
		w := &treeWriter{ctx: ctx, tx: tx, db: r.db}
		if err := w.facility(root, nil); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing directory: %w", err)
	}
	return nil
}

// treeWriter numbers facilities and positions in depth-first document
// order while inserting them.
type treeWriter struct {
	ctx    context.Context
	tx     *sql.Tx
	db     *DB
	facSeq int64
	posSeq int64
}

func (w *treeWriter) facility(f *directory.Facility, parent *int64) error {
	seq := w.facSeq
	w.facSeq++

	_, err := w.tx.ExecContext(w.ctx, w.db.Rebind(
		"INSERT INTO facilities (seq, parent_seq, facility_id, name) VALUES (?, ?, ?, ?)"),
		seq, parent, f.ID, f.Name)
	if err != nil {
		return fmt.Errorf("inserting facility %q: %w", f.ID, err)
	}

	for i := range f.Positions {
		if err := w.position(&f.Positions[i], seq); err != nil {
			return err
		}
	}
	for i := range f.ChildFacilities {
		if err := w.facility(&f.ChildFacilities[i], &seq); err != nil {
			return err
		}
	}
	return nil
}

func (w *treeWriter) position(p *directory.Position, facilitySeq int64) error {
	seq := w.posSeq
	w.posSeq++

	_, err := w.tx.ExecContext(w.ctx, w.db.Rebind(
		"INSERT INTO positions (seq, facility_seq, callsign, name, frequency, ui) VALUES (?, ?, ?, ?, ?, ?)"),
		seq, facilitySeq, p.Callsign, p.Name, p.Frequency, string(p.UI))
	if err != nil {
		return fmt.Errorf("inserting position %q: %w", p.Callsign, err)
	}

	trunks := make([]string, 0, len(p.DialCodes))
	for trunk := range p.DialCodes {
		trunks = append(trunks, trunk)
	}
	sort.Strings(trunks)

	for _, trunk := range trunks {
		_, err := w.tx.ExecContext(w.ctx, w.db.Rebind(
			"INSERT INTO dial_trunks (position_seq, trunk) VALUES (?, ?)"),
			seq, trunk)
		if err != nil {
			return fmt.Errorf("inserting trunk %s for %q: %w", trunk, p.Callsign, err)
		}
		for code, target := range p.DialCodes[trunk] {
			_, err := w.tx.ExecContext(w.ctx, w.db.Rebind(
				"INSERT INTO dial_codes (position_seq, trunk, code, target) VALUES (?, ?, ?, ?)"),
				seq, trunk, code, target)
			if err != nil {
				return fmt.Errorf("inserting dial code %s/%s for %q: %w", trunk, code, p.Callsign, err)
			}
		}
	}
	return nil
}

// facilityNode is a facility under reconstruction.
type facilityNode struct {
	facility directory.Facility
	children []int64
}

// Load rebuilds the stored tree. A trunk stored without codes loads as an
// empty code map; a position with no trunks loads with a nil table, which
// encodes the same as an empty one.
func (r *directoryRepo) Load(ctx context.Context) (*directory.Facility, error) {
	nodes, root, err := r.loadFacilities(ctx)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, nil
	}

	// position seq -> (facility seq, index within its Positions)
	type posRef struct {
		facility int64
		index    int
	}
	refs := make(map[int64]posRef)

	rows, err := r.db.QueryContext(ctx,
		"SELECT seq, facility_seq, callsign, name, frequency, ui FROM positions ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("querying positions: %w", err)
	}
	for rows.Next() {
		var (
			seq, facilitySeq int64
			p                directory.Position
			ui               string
		)
		if err := rows.Scan(&seq, &facilitySeq, &p.Callsign, &p.Name, &p.Frequency, &ui); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning position row: %w", err)
		}
		p.UI = directory.UI(ui)
		n, ok := nodes[facilitySeq]
		if !ok {
			rows.Close()
			return nil, fmt.Errorf("position %q references missing facility %d", p.Callsign, facilitySeq)
		}
		refs[seq] = posRef{facility: facilitySeq, index: len(n.facility.Positions)}
		n.facility.Positions = append(n.facility.Positions, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating positions: %w", err)
	}
	rows.Close()

	// trunkTable returns the code map of a stored trunk, creating it.
	trunkTable := func(posSeq int64, trunk string) map[string]string {
		ref, ok := refs[posSeq]
		if !ok {
			return nil
		}
		p := &nodes[ref.facility].facility.Positions[ref.index]
		if p.DialCodes == nil {
			p.DialCodes = make(directory.DialCodeTable)
		}
		if p.DialCodes[trunk] == nil {
			p.DialCodes[trunk] = make(map[string]string)
		}
		return p.DialCodes[trunk]
	}

	rows, err = r.db.QueryContext(ctx, "SELECT position_seq, trunk FROM dial_trunks")
	if err != nil {
		return nil, fmt.Errorf("querying trunks: %w", err)
	}
	for rows.Next() {
		var (
			posSeq int64
			trunk  string
		)
		if err := rows.Scan(&posSeq, &trunk); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning trunk row: %w", err)
		}
		trunkTable(posSeq, trunk)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating trunks: %w", err)
	}
	rows.Close()

	rows, err = r.db.QueryContext(ctx, "SELECT position_seq, trunk, code, target FROM dial_codes")
	if err != nil {
		return nil, fmt.Errorf("querying dial codes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			posSeq              int64
			trunk, code, target string
		)
		if err := rows.Scan(&posSeq, &trunk, &code, &target); err != nil {
			return nil, fmt.Errorf("scanning dial code row: %w", err)
		}
		if codes := trunkTable(posSeq, trunk); codes != nil {
			codes[code] = target
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating dial codes: %w", err)
	}

	tree := assemble(nodes, *root)
	return &tree, nil
}

// loadFacilities reads every facility row and links children to parents.
// root is nil when the table is empty.
func (r *directoryRepo) loadFacilities(ctx context.Context) (map[int64]*facilityNode, *int64, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT seq, parent_seq, facility_id, name FROM facilities ORDER BY seq")
	if err != nil {
		return nil, nil, fmt.Errorf("querying facilities: %w", err)
	}
	defer rows.Close()

	nodes := make(map[int64]*facilityNode)
	var root *int64
	for rows.Next() {
		var (
			seq    int64
			parent sql.NullInt64
			n      facilityNode
		)
		if err := rows.Scan(&seq, &parent, &n.facility.ID, &n.facility.Name); err != nil {
			return nil, nil, fmt.Errorf("scanning facility row: %w", err)
		}
		nodes[seq] = &n
		if !parent.Valid {
			if root == nil {
				s := seq
				root = &s
			}
			continue
		}
		p, ok := nodes[parent.Int64]
		if !ok {
			return nil, nil, fmt.Errorf("facility %d references missing parent %d", seq, parent.Int64)
		}
		p.children = append(p.children, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating facilities: %w", err)
	}
	return nodes, root, nil
}

func assemble(nodes map[int64]*facilityNode, seq int64) directory.Facility {
	n := nodes[seq]
	f := n.facility
	for _, child := range n.children {
		f.ChildFacilities = append(f.ChildFacilities, assemble(nodes, child))
	}
	return f
}
