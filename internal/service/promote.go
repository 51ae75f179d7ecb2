package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agentmem/memory-service/internal/model"
	registrylongterm "github.com/agentmem/memory-service/internal/registry/longterm"
	"github.com/charmbracelet/log"
)

// PersistReport is the outcome of one promotion run. Records are promoted
// independently, so a run can succeed for some records and fail for others;
// callers retry only the failed subset.
type PersistReport struct {
	Status    string           `json:"status"`
	Persisted []string         `json:"persisted"`
	Failed    []PersistFailure `json:"failed,omitempty"`
}

// PersistFailure names one record that could not be promoted.
type PersistFailure struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

const (
	PersistStatusOK      = "ok"
	PersistStatusPartial = "partial"
	PersistStatusNothing = "nothing_to_persist"
)

// PersistWorkingMemory copies an agent's working-memory records, optionally
// narrowed to one workflow, into the durable working_persisted partition.
//
// Each promoted record keeps its message_id, created_at and updated_at, and
// gains persisted_at and original_ttl. Sources are left in the TTL tier and
// age out on their own; promotion replicates, it does not move.
func (s *Service) PersistWorkingMemory(ctx context.Context, agentID, workflowID string) (PersistReport, error) {
	records, err := s.ShortTerm.GetMany(ctx, model.CategoryWorking, agentID, model.ShortTermFilter{WorkflowID: workflowID})
	if err != nil {
		return PersistReport{}, fmt.Errorf("load working memory: %w", err)
	}
	if len(records) == 0 {
		return PersistReport{Status: PersistStatusNothing, Persisted: []string{}}, nil
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	report := PersistReport{Persisted: []string{}}
	for _, rec := range records {
		durable := promotedRecord(rec, now)
		if _, err := s.LongTerm.Create(ctx, durable); err != nil {
			// Sources outlive promotion, so a repeated run meets its own
			// earlier copies. That is success, not a failure to retry.
			if errors.Is(err, registrylongterm.ErrAlreadyExists) {
				report.Persisted = append(report.Persisted, rec.MessageID)
				continue
			}
			log.Warn("Failed to persist working-memory record", "agent", agentID, "message_id", rec.MessageID, "err", err)
			report.Failed = append(report.Failed, PersistFailure{MessageID: rec.MessageID, Error: err.Error()})
			continue
		}
		report.Persisted = append(report.Persisted, rec.MessageID)
	}

	report.Status = PersistStatusOK
	if len(report.Failed) > 0 {
		report.Status = PersistStatusPartial
	}
	return report, nil
}

// promotedRecord maps a working-memory record onto its durable counterpart.
// Identity and timestamps transfer verbatim so the promoted record is
// recognizably the same memory.
func promotedRecord(rec model.ShortTermRecord, persistedAt time.Time) model.DurableRecord {
	return model.DurableRecord{
		AgentID:           rec.AgentID,
		MessageID:         rec.MessageID,
		Category:          model.CategoryWorkingPersisted,
		Memory:            rec.Memory.Clone(),
		RunID:             rec.RunID,
		WorkflowID:        rec.WorkflowID,
		Stages:            rec.Stages,
		CurrentStage:      rec.CurrentStage,
		ContextLogSummary: rec.ContextLogSummary,
		UserQuery:         rec.UserQuery,
		CreatedAt:         rec.CreatedAt,
		UpdatedAt:         rec.UpdatedAt,
		PersistedAt:       &persistedAt,
		OriginalTTL:       rec.TTL,
	}
}
