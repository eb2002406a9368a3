package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/qrave1/CoachSpeak/internal/domain"
)

// TranscriptRepository - коллаборатор хранения транскриптов
type TranscriptRepository interface {
	SaveTranscript(ctx context.Context, sessionID string, utterances []domain.Utterance) error
	GetTranscript(ctx context.Context, sessionID string) ([]domain.Utterance, error)
}

type utteranceRow struct {
	SessionID   string    `db:"session_id"`
	Idx         int       `db:"idx"`
	SpeakerRole string    `db:"speaker_role"`
	Text        string    `db:"text"`
	Confidence  float64   `db:"confidence"`
	SpokenAt    time.Time `db:"spoken_at"`
}

type transcriptRepo struct {
	db *sqlx.DB
}

func NewTranscriptRepo(db *sqlx.DB) TranscriptRepository {
	return &transcriptRepo{db: db}
}

// SaveTranscript перезаписывает транскрипт целиком, повторный вызов безопасен
func (r *transcriptRepo) SaveTranscript(ctx context.Context, sessionID string, utterances []domain.Utterance) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, "DELETE FROM session_transcripts WHERE session_id = $1", sessionID); err != nil {
		return fmt.Errorf("delete previous transcript: %w", err)
	}

	if len(utterances) > 0 {
		rows := make([]utteranceRow, 0, len(utterances))
		for _, u := range utterances {
			rows = append(rows, utteranceRow{
				SessionID:   sessionID,
				Idx:         u.Index,
				SpeakerRole: string(u.SpeakerRole),
				Text:        u.Text,
				Confidence:  u.Confidence,
				SpokenAt:    u.Timestamp,
			})
		}

		_, err = tx.NamedExecContext(
			ctx,
			`INSERT INTO session_transcripts (session_id, idx, speaker_role, text, confidence, spoken_at)
			VALUES (:session_id, :idx, :speaker_role, :text, :confidence, :spoken_at)`,
			rows,
		)
		if err != nil {
			return fmt.Errorf("insert utterances: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

func (r *transcriptRepo) GetTranscript(ctx context.Context, sessionID string) ([]domain.Utterance, error) {
	var rows []utteranceRow

	err := r.db.SelectContext(
		ctx,
		&rows,
		`SELECT session_id, idx, speaker_role, text, confidence, spoken_at
		FROM session_transcripts WHERE session_id = $1 ORDER BY idx`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}

	utterances := make([]domain.Utterance, 0, len(rows))
	for _, row := range rows {
		utterances = append(utterances, domain.Utterance{
			Index:       row.Idx,
			Timestamp:   row.SpokenAt,
			SpeakerRole: domain.Role(row.SpeakerRole),
			Text:        row.Text,
			Confidence:  row.Confidence,
		})
	}

	return utterances, nil
}
