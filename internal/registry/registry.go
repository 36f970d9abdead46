package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mechvault/mechvault/internal/classify"
	"github.com/mechvault/mechvault/internal/storage"
)

// ErrEmptyItemNumber is returned when an operation is given a blank item number.
var ErrEmptyItemNumber = errors.New("empty item number")

// ItemMeta carries the revision context an arriving file is registered under.
type ItemMeta struct {
	Revision  string
	Iteration int
	State     string
}

// Service implements the item registry and the file register / work enqueuer.
type Service struct {
	store  storage.Store
	logger *zap.Logger
}

// New creates a registry service backed by store.
func New(store storage.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

// EnsureItem returns the item's current revision context, creating the item
// with defaults (revision "A", iteration 1, state Design) on first sight.
// Concurrent first-sight calls may race to insert; the loser re-reads the row
// the winner wrote.
func (s *Service) EnsureItem(ctx context.Context, itemNumber string) (ItemMeta, error) {
	number := Normalize(itemNumber)
	if number == "" {
		return ItemMeta{}, ErrEmptyItemNumber
	}

	item, err := s.store.GetItem(ctx, number)
	if err == nil {
		return metaOf(item), nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return ItemMeta{}, fmt.Errorf("failed to look up item %s: %w", number, err)
	}

	created := &storage.Item{ItemNumber: number}
	err = s.store.CreateItem(ctx, created)
	if errors.Is(err, storage.ErrAlreadyExists) {
		// Lost an insert race; the existing row wins.
		item, err = s.store.GetItem(ctx, number)
		if err != nil {
			return ItemMeta{}, fmt.Errorf("failed to re-read item %s after insert race: %w", number, err)
		}
		return metaOf(item), nil
	}
	if err != nil {
		return ItemMeta{}, fmt.Errorf("failed to create item %s: %w", number, err)
	}

	s.logger.Info("item created",
		zap.String("item", number),
		zap.String("revision", created.Revision),
		zap.Int("iteration", created.Iteration))
	return metaOf(created), nil
}

// RegisterFile records a file against an item. Re-registering the same
// (item, path) is a no-op. CAD files additionally enqueue parameter- and
// geometry-synchronization tasks for the external sync consumers, in the same
// transaction as the file record.
func (s *Service) RegisterFile(ctx context.Context, itemNumber, path string, fileType classify.FileType, revision string, iteration int) error {
	number := Normalize(itemNumber)
	if number == "" {
		return ErrEmptyItemNumber
	}

	_, err := s.store.GetFile(ctx, number, path)
	if err == nil {
		s.logger.Debug("file already registered",
			zap.String("item", number),
			zap.String("path", path))
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to look up file record: %w", err)
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	record := &storage.FileRecord{
		ItemNumber: number,
		FilePath:   path,
		FileType:   string(fileType),
		Revision:   revision,
		Iteration:  iteration,
	}
	err = tx.CreateFile(ctx, record)
	if errors.Is(err, storage.ErrAlreadyExists) {
		// Raced with another registration of the same path
		s.logger.Debug("file already registered",
			zap.String("item", number),
			zap.String("path", path))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create file record: %w", err)
	}

	if fileType == classify.TypeCAD {
		for _, taskType := range []string{storage.TaskParamSync, storage.TaskGeomSync} {
			task := &storage.WorkTask{
				ItemNumber: number,
				FilePath:   path,
				TaskType:   taskType,
			}
			if err := tx.EnqueueWork(ctx, task); err != nil {
				return fmt.Errorf("failed to enqueue %s task: %w", taskType, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit registration: %w", err)
	}

	s.logger.Info("file registered",
		zap.String("item", number),
		zap.String("path", path),
		zap.String("type", string(fileType)))
	return nil
}

// Normalize maps an item number onto its canonical lowercase form.
func Normalize(itemNumber string) string {
	return strings.ToLower(strings.TrimSpace(itemNumber))
}

func metaOf(item *storage.Item) ItemMeta {
	return ItemMeta{
		Revision:  item.Revision,
		Iteration: item.Iteration,
		State:     item.LifecycleState,
	}
}
