package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/tradearena/agent-arena/internal/domain"
)

// Postgres is the gorm-backed Repository.
type Postgres struct {
	db *gorm.DB
}

// Open connects to Postgres and migrates the schema.
func Open(dsn string) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(
		&domain.Agent{},
		&domain.Ledger{},
		&domain.Position{},
		&domain.Trade{},
		&domain.DecisionRecord{},
		&domain.ValuationSnapshot{},
		&domain.Run{},
		&domain.RunAgentResult{},
		&domain.RunSnapshot{},
		&domain.QuoteRecord{},
	); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Postgres{db: db}, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *Postgres) CreateAgent(ctx context.Context, a *domain.Agent) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Seq == 0 {
		var maxSeq int
		s.db.WithContext(ctx).Model(&domain.Agent{}).Select("COALESCE(MAX(seq), 0)").Scan(&maxSeq)
		a.Seq = maxSeq + 1
	}
	return s.db.WithContext(ctx).Create(a).Error
}

func (s *Postgres) ListActiveAgents(ctx context.Context) ([]domain.Agent, error) {
	var out []domain.Agent
	err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("seq asc").Find(&out).Error
	return out, err
}

func (s *Postgres) CreateLedger(ctx context.Context, l *domain.Ledger) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Create(l).Error
}

func (s *Postgres) GetLedger(ctx context.Context, agentID string) (*domain.Ledger, error) {
	var l domain.Ledger
	err := s.db.WithContext(ctx).Where("agent_id = ?", agentID).First(&l).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

func (s *Postgres) GetPositions(ctx context.Context, ledgerID string) ([]domain.Position, error) {
	var out []domain.Position
	err := s.db.WithContext(ctx).Where("ledger_id = ?", ledgerID).Order("ticker asc").Find(&out).Error
	return out, err
}

func (s *Postgres) CreateTrade(ctx context.Context, t *domain.Trade) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Create(t).Error
}

func (s *Postgres) UpdateTrade(ctx context.Context, t *domain.Trade) error {
	return s.db.WithContext(ctx).Save(t).Error
}

// ApplyFill commits a confirmed fill atomically: trade row, ledger cash
// and the position change all land in one transaction.
func (s *Postgres) ApplyFill(ctx context.Context, f FillApply) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(f.Trade).Error; err != nil {
			return err
		}
		if err := tx.Save(f.Ledger).Error; err != nil {
			return err
		}
		if f.Position == nil {
			return nil
		}
		if f.DeletePosition {
			return tx.Delete(&domain.Position{}, "id = ?", f.Position.ID).Error
		}
		if f.Position.ID == "" {
			f.Position.ID = uuid.NewString()
		}
		return tx.Save(f.Position).Error
	})
}

func (s *Postgres) CreateDecisionRecord(ctx context.Context, d *domain.DecisionRecord) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Create(d).Error
}

func (s *Postgres) LinkDecisionTrade(ctx context.Context, decisionID, tradeID string) error {
	res := s.db.WithContext(ctx).Model(&domain.DecisionRecord{}).
		Where("id = ?", decisionID).
		Update("trade_id", tradeID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) CreateValuationSnapshot(ctx context.Context, v *domain.ValuationSnapshot) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Create(v).Error
}

func (s *Postgres) CreateRun(ctx context.Context, r *domain.Run) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Create(r).Error
}

func (s *Postgres) UpdateRun(ctx context.Context, r *domain.Run) error {
	return s.db.WithContext(ctx).Save(r).Error
}

func (s *Postgres) UpsertRunAgentResult(ctx context.Context, res *domain.RunAgentResult) error {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	res.UpdatedAt = time.Now().UTC()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "run_id"}, {Name: "agent_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"final_cash", "positions_value", "total_value", "return_pct", "rank", "updated_at",
		}),
	}).Create(res).Error
}

func (s *Postgres) ListRunAgentResults(ctx context.Context, runID string) ([]domain.RunAgentResult, error) {
	var out []domain.RunAgentResult
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("agent_id asc").Find(&out).Error
	return out, err
}

func (s *Postgres) AppendRunSnapshot(ctx context.Context, snap *domain.RunSnapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Create(snap).Error
}

func (s *Postgres) ListRunSnapshots(ctx context.Context, runID string) ([]domain.RunSnapshot, error) {
	var out []domain.RunSnapshot
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("date asc, agent_id asc").Find(&out).Error
	return out, err
}

func (s *Postgres) SaveQuote(ctx context.Context, q *domain.QuoteRecord) error {
	q.UpdatedAt = time.Now().UTC()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "ticker"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"price", "change", "change_pct", "volume", "updated_at",
		}),
	}).Create(q).Error
}

func (s *Postgres) LastQuote(ctx context.Context, ticker string) (*domain.QuoteRecord, error) {
	var q domain.QuoteRecord
	err := s.db.WithContext(ctx).Where("ticker = ?", ticker).First(&q).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &q, nil
}
