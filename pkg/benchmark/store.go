package benchmark

import (
	"database/sql"
	"encoding/json"
	"time"

	enginerrors "github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/errors"
	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/eval"
	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/question"
)

// Store persists profiles, runs, attempts, and diagnostics results.
type Store struct {
	db *sql.DB
}

// NewStore wraps an initialized database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SaveProfile inserts or updates a model profile.
func (s *Store) SaveProfile(p *ModelProfile) error {
	if p.ID == "" {
		p.ID = newID()
		p.CreatedAt = time.Now()
	}
	p.UpdatedAt = time.Now()

	steps, err := json.Marshal(p.Steps)
	if err != nil {
		return enginerrors.Wrap(err, enginerrors.ErrCodeStorageWrite, "marshaling profile steps")
	}
	diag, err := marshalNullable(p.Diagnostics)
	if err != nil {
		return enginerrors.Wrap(err, enginerrors.ErrCodeStorageWrite, "marshaling profile diagnostics")
	}

	_, err = s.db.Exec(`
		INSERT INTO profiles (
			id, name, endpoint_base_url, api_key, model_id,
			temperature, top_p, frequency_penalty, presence_penalty,
			max_output_tokens, request_timeout_ms, system_prompt,
			steps, diagnostics_meta, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			endpoint_base_url = excluded.endpoint_base_url,
			api_key = excluded.api_key,
			model_id = excluded.model_id,
			temperature = excluded.temperature,
			top_p = excluded.top_p,
			frequency_penalty = excluded.frequency_penalty,
			presence_penalty = excluded.presence_penalty,
			max_output_tokens = excluded.max_output_tokens,
			request_timeout_ms = excluded.request_timeout_ms,
			system_prompt = excluded.system_prompt,
			steps = excluded.steps,
			diagnostics_meta = excluded.diagnostics_meta,
			updated_at = excluded.updated_at`,
		p.ID, p.Name, p.EndpointBaseURL, p.APIKey, p.ModelID,
		p.Temperature, p.TopP, p.FrequencyPenalty, p.PresencePenalty,
		p.MaxOutputTokens, p.RequestTimeout.Milliseconds(), p.SystemPrompt,
		string(steps), diag, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return enginerrors.Wrap(err, enginerrors.ErrCodeStorageWrite, "saving profile")
	}
	return nil
}

// GetProfile loads one profile by id.
func (s *Store) GetProfile(id string) (*ModelProfile, error) {
	row := s.db.QueryRow(`
		SELECT id, name, endpoint_base_url, api_key, model_id,
		       temperature, top_p, frequency_penalty, presence_penalty,
		       max_output_tokens, request_timeout_ms, system_prompt,
		       steps, diagnostics_meta, created_at, updated_at
		FROM profiles WHERE id = ?`, id)
	profile, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, enginerrors.New(enginerrors.ErrCodeProfileInvalid, "profile not found").
			WithContext("profileId", id)
	}
	return profile, err
}

// ListProfiles returns all profiles ordered by name.
func (s *Store) ListProfiles() ([]*ModelProfile, error) {
	rows, err := s.db.Query(`
		SELECT id, name, endpoint_base_url, api_key, model_id,
		       temperature, top_p, frequency_penalty, presence_penalty,
		       max_output_tokens, request_timeout_ms, system_prompt,
		       steps, diagnostics_meta, created_at, updated_at
		FROM profiles ORDER BY name`)
	if err != nil {
		return nil, enginerrors.Wrap(err, enginerrors.ErrCodeStorageRead, "listing profiles")
	}
	defer rows.Close()

	var profiles []*ModelProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// DeleteProfile removes a profile and, via cascade, its diagnostics history.
func (s *Store) DeleteProfile(id string) error {
	res, err := s.db.Exec(`DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return enginerrors.Wrap(err, enginerrors.ErrCodeStorageWrite, "deleting profile")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return enginerrors.New(enginerrors.ErrCodeProfileInvalid, "profile not found").
			WithContext("profileId", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*ModelProfile, error) {
	var p ModelProfile
	var apiKey, systemPrompt, steps, diag sql.NullString
	var timeoutMS int64

	err := row.Scan(
		&p.ID, &p.Name, &p.EndpointBaseURL, &apiKey, &p.ModelID,
		&p.Temperature, &p.TopP, &p.FrequencyPenalty, &p.PresencePenalty,
		&p.MaxOutputTokens, &timeoutMS, &systemPrompt,
		&steps, &diag, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, enginerrors.Wrap(err, enginerrors.ErrCodeStorageRead, "scanning profile")
	}

	p.APIKey = apiKey.String
	p.SystemPrompt = systemPrompt.String
	p.RequestTimeout = time.Duration(timeoutMS) * time.Millisecond
	if steps.Valid && steps.String != "" {
		if err := json.Unmarshal([]byte(steps.String), &p.Steps); err != nil {
			return nil, enginerrors.Wrap(err, enginerrors.ErrCodeStorageCorrupt, "decoding profile steps").
				WithContext("profileId", p.ID)
		}
	}
	if diag.Valid && diag.String != "" {
		if err := json.Unmarshal([]byte(diag.String), &p.Diagnostics); err != nil {
			return nil, enginerrors.Wrap(err, enginerrors.ErrCodeStorageCorrupt, "decoding profile diagnostics").
				WithContext("profileId", p.ID)
		}
	}
	return &p, nil
}

// SaveDiagnostics persists one diagnostics check.
func (s *Store) SaveDiagnostics(d *DiagnosticsResult) error {
	if d.ID == "" {
		d.ID = newID()
	}

	logJSON, err := json.Marshal(d.Log)
	if err != nil {
		return enginerrors.Wrap(err, enginerrors.ErrCodeStorageWrite, "marshaling diagnostics log")
	}
	meta, err := marshalNullable(d.Metadata)
	if err != nil {
		return enginerrors.Wrap(err, enginerrors.ErrCodeStorageWrite, "marshaling diagnostics metadata")
	}

	_, err = s.db.Exec(`
		INSERT INTO diagnostics_results (
			id, profile_id, level, status, summary,
			started_at, completed_at, log, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.ProfileID, string(d.Level), string(d.Status), d.Summary,
		d.StartedAt, d.CompletedAt, string(logJSON), meta,
	)
	if err != nil {
		return enginerrors.Wrap(err, enginerrors.ErrCodeStorageWrite, "saving diagnostics result")
	}
	return nil
}

// ListDiagnostics returns recent diagnostics for a profile, newest first.
func (s *Store) ListDiagnostics(profileID string, limit int) ([]*DiagnosticsResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, profile_id, level, status, summary, started_at, completed_at, log, metadata
		FROM diagnostics_results
		WHERE profile_id = ?
		ORDER BY started_at DESC
		LIMIT ?`, profileID, limit)
	if err != nil {
		return nil, enginerrors.Wrap(err, enginerrors.ErrCodeStorageRead, "listing diagnostics")
	}
	defer rows.Close()

	var results []*DiagnosticsResult
	for rows.Next() {
		var d DiagnosticsResult
		var summary, logJSON, meta sql.NullString
		var completedAt sql.NullTime
		if err := rows.Scan(&d.ID, &d.ProfileID, &d.Level, &d.Status, &summary,
			&d.StartedAt, &completedAt, &logJSON, &meta); err != nil {
			return nil, enginerrors.Wrap(err, enginerrors.ErrCodeStorageRead, "scanning diagnostics result")
		}
		d.Summary = summary.String
		if completedAt.Valid {
			d.CompletedAt = &completedAt.Time
		}
		if logJSON.Valid && logJSON.String != "" {
			if err := json.Unmarshal([]byte(logJSON.String), &d.Log); err != nil {
				return nil, enginerrors.Wrap(err, enginerrors.ErrCodeStorageCorrupt, "decoding diagnostics log")
			}
		}
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &d.Metadata); err != nil {
				return nil, enginerrors.Wrap(err, enginerrors.ErrCodeStorageCorrupt, "decoding diagnostics metadata")
			}
		}
		results = append(results, &d)
	}
	return results, rows.Err()
}

// CreateRun inserts a new run record.
func (s *Store) CreateRun(r *BenchmarkRun) error {
	if r.ID == "" {
		r.ID = newID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if r.Status == "" {
		r.Status = StatusDraft
	}
	return s.writeRun(r, true)
}

// UpdateRun persists the mutable fields of an existing run.
func (s *Store) UpdateRun(r *BenchmarkRun) error {
	return s.writeRun(r, false)
}

func (s *Store) writeRun(r *BenchmarkRun, insert bool) error {
	questionIDs, err := json.Marshal(r.QuestionIDs)
	if err != nil {
		return enginerrors.Wrap(err, enginerrors.ErrCodeStorageWrite, "marshaling run question ids")
	}
	metrics, err := marshalNullable(r.Metrics)
	if err != nil {
		return enginerrors.Wrap(err, enginerrors.ErrCodeStorageWrite, "marshaling run metrics")
	}

	if insert {
		_, err = s.db.Exec(`
			INSERT INTO runs (
				id, label, profile_id, profile_name, profile_model_id, status,
				question_ids, dataset_label, dataset_total, dataset_filter,
				metrics, error, created_at, started_at, completed_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.Label, r.ProfileID, r.ProfileName, r.ProfileModelID, string(r.Status),
			string(questionIDs), r.DatasetLabel, r.DatasetTotal, r.DatasetFilter,
			metrics, r.Error, r.CreatedAt, r.StartedAt, r.CompletedAt,
		)
	} else {
		var res sql.Result
		res, err = s.db.Exec(`
			UPDATE runs SET
				label = ?, status = ?, question_ids = ?, dataset_label = ?,
				dataset_total = ?, dataset_filter = ?, metrics = ?, error = ?,
				started_at = ?, completed_at = ?
			WHERE id = ?`,
			r.Label, string(r.Status), string(questionIDs), r.DatasetLabel,
			r.DatasetTotal, r.DatasetFilter, metrics, r.Error,
			r.StartedAt, r.CompletedAt, r.ID,
		)
		if err == nil {
			if n, _ := res.RowsAffected(); n == 0 {
				return enginerrors.New(enginerrors.ErrCodeRunNotFound, "run not found").
					WithContext("runId", r.ID)
			}
		}
	}
	if err != nil {
		return enginerrors.Wrap(err, enginerrors.ErrCodeStorageWrite, "saving run")
	}
	return nil
}

// GetRun loads one run by id.
func (s *Store) GetRun(id string) (*BenchmarkRun, error) {
	row := s.db.QueryRow(selectRunColumns+` WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, enginerrors.New(enginerrors.ErrCodeRunNotFound, "run not found").
			WithContext("runId", id)
	}
	return run, err
}

const selectRunColumns = `
	SELECT id, label, profile_id, profile_name, profile_model_id, status,
	       question_ids, dataset_label, dataset_total, dataset_filter,
	       metrics, error, created_at, started_at, completed_at
	FROM runs`

// ListRuns returns runs newest-first, optionally filtered to the given
// statuses.
func (s *Store) ListRuns(statuses ...RunStatus) ([]*BenchmarkRun, error) {
	query := selectRunColumns
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (?` + repeatPlaceholder(len(statuses)-1) + `)`
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, enginerrors.Wrap(err, enginerrors.ErrCodeStorageRead, "listing runs")
	}
	defer rows.Close()

	var runs []*BenchmarkRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// QueuedRuns returns queued runs in submission order.
func (s *Store) QueuedRuns() ([]*BenchmarkRun, error) {
	rows, err := s.db.Query(selectRunColumns+` WHERE status = ? ORDER BY created_at ASC`, string(StatusQueued))
	if err != nil {
		return nil, enginerrors.Wrap(err, enginerrors.ErrCodeStorageRead, "listing queued runs")
	}
	defer rows.Close()

	var runs []*BenchmarkRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run and, via cascade, its attempts.
func (s *Store) DeleteRun(id string) error {
	res, err := s.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return enginerrors.Wrap(err, enginerrors.ErrCodeStorageWrite, "deleting run")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return enginerrors.New(enginerrors.ErrCodeRunNotFound, "run not found").WithContext("runId", id)
	}
	return nil
}

func scanRun(row rowScanner) (*BenchmarkRun, error) {
	var r BenchmarkRun
	var questionIDs string
	var datasetLabel, datasetFilter, metrics, runErr sql.NullString
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&r.ID, &r.Label, &r.ProfileID, &r.ProfileName, &r.ProfileModelID, &r.Status,
		&questionIDs, &datasetLabel, &r.DatasetTotal, &datasetFilter,
		&metrics, &runErr, &r.CreatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, enginerrors.Wrap(err, enginerrors.ErrCodeStorageRead, "scanning run")
	}

	if err := json.Unmarshal([]byte(questionIDs), &r.QuestionIDs); err != nil {
		return nil, enginerrors.Wrap(err, enginerrors.ErrCodeStorageCorrupt, "decoding run question ids").
			WithContext("runId", r.ID)
	}
	r.DatasetLabel = datasetLabel.String
	r.DatasetFilter = datasetFilter.String
	r.Error = runErr.String
	if metrics.Valid && metrics.String != "" {
		if err := json.Unmarshal([]byte(metrics.String), &r.Metrics); err != nil {
			return nil, enginerrors.Wrap(err, enginerrors.ErrCodeStorageCorrupt, "decoding run metrics").
				WithContext("runId", r.ID)
		}
	}
	if startedAt.Valid {
		r.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		r.CompletedAt = &completedAt.Time
	}
	return &r, nil
}

// SaveAttempt persists one attempt. The unique (run_id, question_id) index
// makes replays idempotent.
func (s *Store) SaveAttempt(a *BenchmarkAttempt) error {
	if a.ID == "" {
		a.ID = newID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	steps, err := json.Marshal(a.Steps)
	if err != nil {
		return enginerrors.Wrap(err, enginerrors.ErrCodeStorageWrite, "marshaling attempt steps")
	}
	answerEval, err := marshalNullable(a.AnswerEval)
	if err != nil {
		return enginerrors.Wrap(err, enginerrors.ErrCodeStorageWrite, "marshaling answer evaluation")
	}
	topologyEval, err := marshalNullable(a.TopologyEval)
	if err != nil {
		return enginerrors.Wrap(err, enginerrors.ErrCodeStorageWrite, "marshaling topology evaluation")
	}
	topologyPred, err := marshalNullable(a.TopologyPred)
	if err != nil {
		return enginerrors.Wrap(err, enginerrors.ErrCodeStorageWrite, "marshaling topology prediction")
	}

	_, err = s.db.Exec(`
		INSERT INTO attempts (
			id, run_id, question_id, position, question_type, question_prompt,
			question_difficulty, steps, answer_eval, topology_eval, topology_pred,
			latency_ms, prompt_tokens, completion_tokens, error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, question_id) DO UPDATE SET
			steps = excluded.steps,
			answer_eval = excluded.answer_eval,
			topology_eval = excluded.topology_eval,
			topology_pred = excluded.topology_pred,
			latency_ms = excluded.latency_ms,
			prompt_tokens = excluded.prompt_tokens,
			completion_tokens = excluded.completion_tokens,
			error = excluded.error`,
		a.ID, a.RunID, a.QuestionID, a.Position, string(a.QuestionType), a.QuestionPrompt,
		a.QuestionDifficulty, string(steps), answerEval, topologyEval, topologyPred,
		a.Latency.Milliseconds(), a.PromptTokens, a.CompletionTokens, a.Error, a.CreatedAt,
	)
	if err != nil {
		return enginerrors.Wrap(err, enginerrors.ErrCodeStorageWrite, "saving attempt")
	}
	return nil
}

// ListAttempts returns a run's attempts in execution order.
func (s *Store) ListAttempts(runID string) ([]*BenchmarkAttempt, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, question_id, position, question_type, question_prompt,
		       question_difficulty, steps, answer_eval, topology_eval, topology_pred,
		       latency_ms, prompt_tokens, completion_tokens, error, created_at
		FROM attempts WHERE run_id = ? ORDER BY position ASC`, runID)
	if err != nil {
		return nil, enginerrors.Wrap(err, enginerrors.ErrCodeStorageRead, "listing attempts")
	}
	defer rows.Close()

	var attempts []*BenchmarkAttempt
	for rows.Next() {
		var a BenchmarkAttempt
		var questionType string
		var difficulty, steps, answerEval, topologyEval, topologyPred, attErr sql.NullString
		var latencyMS int64
		if err := rows.Scan(
			&a.ID, &a.RunID, &a.QuestionID, &a.Position, &questionType, &a.QuestionPrompt,
			&difficulty, &steps, &answerEval, &topologyEval, &topologyPred,
			&latencyMS, &a.PromptTokens, &a.CompletionTokens, &attErr, &a.CreatedAt,
		); err != nil {
			return nil, enginerrors.Wrap(err, enginerrors.ErrCodeStorageRead, "scanning attempt")
		}
		a.QuestionType = question.Type(questionType)
		a.QuestionDifficulty = difficulty.String
		a.Latency = time.Duration(latencyMS) * time.Millisecond
		a.Error = attErr.String
		if err := unmarshalNullable(steps, &a.Steps); err != nil {
			return nil, enginerrors.Wrap(err, enginerrors.ErrCodeStorageCorrupt, "decoding attempt steps")
		}
		if err := unmarshalNullableInto(answerEval, func() any { a.AnswerEval = &eval.Evaluation{}; return a.AnswerEval }); err != nil {
			return nil, enginerrors.Wrap(err, enginerrors.ErrCodeStorageCorrupt, "decoding answer evaluation")
		}
		if err := unmarshalNullableInto(topologyEval, func() any { a.TopologyEval = &eval.TopologyEvaluation{}; return a.TopologyEval }); err != nil {
			return nil, enginerrors.Wrap(err, enginerrors.ErrCodeStorageCorrupt, "decoding topology evaluation")
		}
		if err := unmarshalNullableInto(topologyPred, func() any { a.TopologyPred = &eval.TopologyPrediction{}; return a.TopologyPred }); err != nil {
			return nil, enginerrors.Wrap(err, enginerrors.ErrCodeStorageCorrupt, "decoding topology prediction")
		}
		attempts = append(attempts, &a)
	}
	return attempts, rows.Err()
}

// CountAttempts returns the number of persisted attempts for a run.
func (s *Store) CountAttempts(runID string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM attempts WHERE run_id = ?`, runID).Scan(&count)
	if err != nil {
		return 0, enginerrors.Wrap(err, enginerrors.ErrCodeStorageRead, "counting attempts")
	}
	return count, nil
}

func marshalNullable(v any) (any, error) {
	if v == nil || isNilPointer(v) {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func isNilPointer(v any) bool {
	switch x := v.(type) {
	case *RunMetrics:
		return x == nil
	case *ProfileDiagnostics:
		return x == nil
	case *eval.Evaluation:
		return x == nil
	case *eval.TopologyEvaluation:
		return x == nil
	case *eval.TopologyPrediction:
		return x == nil
	case map[string]any:
		return x == nil
	default:
		return false
	}
}

func unmarshalNullable(src sql.NullString, dst any) error {
	if !src.Valid || src.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(src.String), dst)
}

func unmarshalNullableInto(src sql.NullString, alloc func() any) error {
	if !src.Valid || src.String == "" || src.String == "null" {
		return nil
	}
	return json.Unmarshal([]byte(src.String), alloc())
}

func repeatPlaceholder(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += ", ?"
	}
	return out
}
