package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/IBigIBruce/MTGA-Backend/game/hideout"
	"github.com/IBigIBruce/MTGA-Backend/game/inventory"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

const snapshotVersion = 1

// Snapshot is the portable form of a profile. Export writes it as
// zstd-compressed JSON.
type Snapshot struct {
	Version      int              `json:"version"`
	Name         string           `json:"name"`
	Side         string           `json:"side"`
	Level        int              `json:"level"`
	StashID      string           `json:"stashId"`
	EquipmentID  string           `json:"equipmentId"`
	Encyclopedia map[string]bool  `json:"encyclopedia,omitempty"`
	Items        []inventory.Item `json:"items"`
	Hideout      *hideout.State   `json:"hideout"`
}

func (p *Profile) snapshot() Snapshot {
	return Snapshot{
		Version:      snapshotVersion,
		Name:         p.Name,
		Side:         p.Side,
		Level:        p.Level,
		StashID:      p.StashID,
		EquipmentID:  p.EquipmentID,
		Encyclopedia: p.Encyclopedia,
		Items:        p.tree.Items(),
		Hideout:      p.hideout.Clone(),
	}
}

// WriteSnapshot encodes s to w.
func WriteSnapshot(w io.Writer, s Snapshot) error {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if err := json.NewEncoder(zw).Encode(s); err != nil {
		_ = zw.Close()
		return err
	}
	return zw.Close()
}

// ReadSnapshot decodes a snapshot written by WriteSnapshot.
func ReadSnapshot(r io.Reader) (Snapshot, error) {
	var s Snapshot
	zr, err := zstd.NewReader(r)
	if err != nil {
		return s, fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}
	defer zr.Close()
	if err := json.NewDecoder(zr).Decode(&s); err != nil {
		return s, fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}
	if s.Version != snapshotVersion {
		return s, fmt.Errorf("%w: version %d", ErrBadSnapshot, s.Version)
	}
	return s, nil
}

// Export returns the compressed snapshot of a character.
func (m *Manager) Export(ctx context.Context, charID int64) ([]byte, error) {
	var buf bytes.Buffer
	err := m.View(ctx, charID, func(p *Profile) error {
		return WriteSnapshot(&buf, p.snapshot())
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Import replaces a character's items, hideout and progress with a
// snapshot and saves it at once. The character keeps its id, owner and name.
func (m *Manager) Import(ctx context.Context, charID int64, data []byte) error {
	s, err := ReadSnapshot(bytes.NewReader(data))
	if err != nil {
		return err
	}
	return m.Update(ctx, charID, func(cur *Profile) error {
		next := &Profile{
			CharID:       cur.CharID,
			AccountID:    cur.AccountID,
			Name:         cur.Name,
			Side:         cur.Side,
			Level:        s.Level,
			StashID:      s.StashID,
			EquipmentID:  s.EquipmentID,
			Encyclopedia: s.Encyclopedia,
		}
		if s.StashID != cur.StashID || s.EquipmentID != cur.EquipmentID {
			return fmt.Errorf("%w: root containers do not match character %d", ErrBadSnapshot, charID)
		}
		if _, err := assemble(next, m.store.catalog, s.Items, s.Hideout); err != nil {
			return fmt.Errorf("%w: %v", ErrBadSnapshot, err)
		}
		if err := m.store.Save(ctx, next); err != nil {
			return err
		}
		*cur = *next
		m.logger.Info("profile imported", zap.Int64("char_id", charID), zap.Int("items", next.tree.Len()))
		return nil
	})
}
