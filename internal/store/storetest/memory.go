// Package storetest provides an in-memory store.Store used by unit tests.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/reelscript/reelscript/internal/model"
	"github.com/reelscript/reelscript/internal/store"
)

// Memory implements store.Store over maps. It is safe for concurrent use.
type Memory struct {
	mu sync.Mutex

	ScriptsByHash map[string]*model.Script
	JobsByID      map[string]*model.Job
	UsersByID     map[string]*model.User
	AnalysesByHash map[string]*model.ReelAnalysis
	Records       []*model.DatasetRecord
	Memories      map[string]*model.UserMemory

	nextOrdinal int64
	now         func() time.Time

	// Fail, when set, makes every operation return it.
	Fail error
}

func New() *Memory {
	return &Memory{
		ScriptsByHash:  make(map[string]*model.Script),
		JobsByID:       make(map[string]*model.Job),
		UsersByID:      make(map[string]*model.User),
		AnalysesByHash: make(map[string]*model.ReelAnalysis),
		Memories:       make(map[string]*model.UserMemory),
		now:            time.Now,
	}
}

func (m *Memory) Scripts() store.Scripts       { return (*memScripts)(m) }
func (m *Memory) Jobs() store.Jobs             { return (*memJobs)(m) }
func (m *Memory) Users() store.Users           { return (*memUsers)(m) }
func (m *Memory) Analyses() store.Analyses     { return (*memAnalyses)(m) }
func (m *Memory) Dataset() store.Dataset       { return (*memDataset)(m) }
func (m *Memory) UserMemory() store.UserMemory { return (*memUserMemory)(m) }

func (m *Memory) HealthPing(ctx context.Context) error { return m.Fail }

// --- Scripts ---

type memScripts Memory

func (s *memScripts) Upsert(ctx context.Context, sc *model.Script) (*model.Script, error) {
	m := (*Memory)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	cp := *sc
	if existing, ok := m.ScriptsByHash[sc.RequestHash]; ok {
		cp.CreationTime = existing.CreationTime
	} else if cp.CreationTime.IsZero() {
		cp.CreationTime = m.now()
	}
	m.ScriptsByHash[sc.RequestHash] = &cp
	out := cp
	return &out, nil
}

func (s *memScripts) GetByRequestHash(ctx context.Context, requestHash string) (*model.Script, error) {
	m := (*Memory)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	if sc, ok := m.ScriptsByHash[requestHash]; ok {
		out := *sc
		return &out, nil
	}
	return nil, model.ErrNotFound
}

func (s *memScripts) GetByPublicID(ctx context.Context, publicID string) (*model.Script, error) {
	m := (*Memory)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	for _, sc := range m.ScriptsByHash {
		if sc.PublicID == publicID {
			out := *sc
			return &out, nil
		}
	}
	return nil, model.ErrNotFound
}

func (s *memScripts) ListByCanonicalURL(ctx context.Context, canonicalURL string, limit int) ([]*model.Script, error) {
	m := (*Memory)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	var out []*model.Script
	for _, sc := range m.ScriptsByHash {
		if sc.ReelURL == canonicalURL {
			cp := *sc
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreationTime.After(out[j].CreationTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memScripts) PublicIDExists(ctx context.Context, publicID string) (bool, error) {
	_, err := s.GetByPublicID(ctx, publicID)
	if err == model.ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (s *memScripts) SetQualityScore(ctx context.Context, requestHash string, score float64) error {
	m := (*Memory)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	sc, ok := m.ScriptsByHash[requestHash]
	if !ok {
		return model.ErrNotFound
	}
	sc.QualityScore = &score
	t := m.now()
	sc.ScoredTime = &t
	return nil
}

// --- Jobs ---

type memJobs Memory

func (j *memJobs) Create(ctx context.Context, job *model.Job) (*model.Job, error) {
	m := (*Memory)(j)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	if existing, ok := m.JobsByID[job.JobID]; ok {
		out := *existing
		return &out, nil
	}
	cp := *job
	cp.Status = model.JobQueued
	cp.CreationTime = m.now()
	m.JobsByID[job.JobID] = &cp
	out := cp
	return &out, nil
}

func (j *memJobs) Get(ctx context.Context, jobID string) (*model.Job, error) {
	m := (*Memory)(j)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	if job, ok := m.JobsByID[jobID]; ok {
		out := *job
		return &out, nil
	}
	return nil, model.ErrNotFound
}

func (j *memJobs) FindActiveByRequestHash(ctx context.Context, requestHash string) (*model.Job, error) {
	m := (*Memory)(j)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	var best *model.Job
	for _, job := range m.JobsByID {
		if job.RequestHash != requestHash {
			continue
		}
		if job.Status != model.JobQueued && job.Status != model.JobProcessing {
			continue
		}
		if best == nil || job.CreationTime.Before(best.CreationTime) {
			best = job
		}
	}
	if best == nil {
		return nil, model.ErrNotFound
	}
	out := *best
	return &out, nil
}

func (j *memJobs) CountActive(ctx context.Context) (int64, error) {
	m := (*Memory)(j)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return 0, m.Fail
	}
	var n int64
	for _, job := range m.JobsByID {
		if job.Status == model.JobQueued || job.Status == model.JobProcessing {
			n++
		}
	}
	return n, nil
}

// --- Users ---

type memUsers Memory

func (u *memUsers) Get(ctx context.Context, subscriberID string) (*model.User, error) {
	m := (*Memory)(u)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	if usr, ok := m.UsersByID[subscriberID]; ok {
		out := *usr
		return &out, nil
	}
	return nil, model.ErrNotFound
}

func (u *memUsers) Admit(ctx context.Context, subscriberID string, capacity int) (*store.AdmitResult, error) {
	m := (*Memory)(u)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}

	active := 0
	for _, usr := range m.UsersByID {
		if usr.Status == model.UserActive {
			active++
		}
	}

	existing, found := m.UsersByID[subscriberID]
	res := &store.AdmitResult{}
	switch {
	case !found && active < capacity:
		m.nextOrdinal++
		ord := m.nextOrdinal
		usr := &model.User{SubscriberID: subscriberID, Status: model.UserActive, RegistrationNumber: &ord, CreationTime: m.now()}
		m.UsersByID[subscriberID] = usr
		cp := *usr
		res.User = &cp
	case !found:
		usr := &model.User{SubscriberID: subscriberID, Status: model.UserWaitlist, CreationTime: m.now()}
		m.UsersByID[subscriberID] = usr
		cp := *usr
		res.User = &cp
		res.WaitlistPosition = m.waitlistPositionLocked(subscriberID)
	case existing.Status == model.UserWaitlist && active < capacity:
		if m.waitlistPositionLocked(subscriberID) == 1 {
			m.nextOrdinal++
			ord := m.nextOrdinal
			existing.Status = model.UserActive
			existing.RegistrationNumber = &ord
			cp := *existing
			res.User = &cp
			res.Promoted = true
		} else {
			cp := *existing
			res.User = &cp
			res.WaitlistPosition = m.waitlistPositionLocked(subscriberID)
		}
	case existing.Status == model.UserWaitlist:
		cp := *existing
		res.User = &cp
		res.WaitlistPosition = m.waitlistPositionLocked(subscriberID)
	default:
		cp := *existing
		res.User = &cp
	}
	return res, nil
}

func (m *Memory) waitlistPositionLocked(subscriberID string) int {
	me, ok := m.UsersByID[subscriberID]
	if !ok {
		return 0
	}
	pos := 0
	for _, usr := range m.UsersByID {
		if usr.Status == model.UserWaitlist && !usr.CreationTime.After(me.CreationTime) {
			pos++
		}
	}
	return pos
}

func (u *memUsers) TouchRequest(ctx context.Context, subscriberID string) error {
	m := (*Memory)(u)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	if usr, ok := m.UsersByID[subscriberID]; ok {
		usr.RequestCount++
		t := m.now()
		usr.LastRequestTime = &t
	}
	return nil
}

func (u *memUsers) CountActive(ctx context.Context) (int64, error) {
	m := (*Memory)(u)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return 0, m.Fail
	}
	var n int64
	for _, usr := range m.UsersByID {
		if usr.Status == model.UserActive {
			n++
		}
	}
	return n, nil
}

// --- Analyses ---

type memAnalyses Memory

func (a *memAnalyses) Get(ctx context.Context, reelHash string) (*model.ReelAnalysis, error) {
	m := (*Memory)(a)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	an, ok := m.AnalysesByHash[reelHash]
	if !ok || m.now().After(an.ExpiresAt) {
		return nil, model.ErrNotFound
	}
	out := *an
	return &out, nil
}

func (a *memAnalyses) Upsert(ctx context.Context, an *model.ReelAnalysis) error {
	m := (*Memory)(a)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	cp := *an
	if cp.CreationTime.IsZero() {
		cp.CreationTime = m.now()
	}
	m.AnalysesByHash[an.ReelHash] = &cp
	return nil
}

func (a *memAnalyses) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	m := (*Memory)(a)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return 0, m.Fail
	}
	var n int64
	for k, an := range m.AnalysesByHash {
		if !an.ExpiresAt.After(now) {
			delete(m.AnalysesByHash, k)
			n++
		}
	}
	return n, nil
}

// --- Dataset ---

type memDataset Memory

func (d *memDataset) Insert(ctx context.Context, r *model.DatasetRecord) error {
	m := (*Memory)(d)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	cp := *r
	if cp.CreationTime.IsZero() {
		cp.CreationTime = m.now()
	}
	m.Records = append(m.Records, &cp)
	return nil
}

func (d *memDataset) AttachFeedback(ctx context.Context, requestHash, subscriberID string, rating *int, section map[string]string, text string, perf map[string]interface{}) error {
	m := (*Memory)(d)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	for _, r := range m.Records {
		if r.RequestHash == requestHash && r.SubscriberID == subscriberID {
			if rating != nil {
				r.OverallRating = rating
			}
			if section != nil {
				r.SectionFeedback = section
			}
			if text != "" {
				r.FeedbackText = text
			}
			if perf != nil {
				r.VideoPerformance = perf
			}
			t := m.now()
			r.FeedbackTime = &t
			r.Validated = true
			return nil
		}
	}
	return model.ErrNotFound
}

func (d *memDataset) List(ctx context.Context, limit, skip int, validatedOnly bool) ([]*model.DatasetRecord, error) {
	m := (*Memory)(d)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	var out []*model.DatasetRecord
	for _, r := range m.Records {
		if validatedOnly && !r.Validated {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreationTime.After(out[j].CreationTime) })
	if skip > 0 {
		if skip >= len(out) {
			return nil, nil
		}
		out = out[skip:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (d *memDataset) Stats(ctx context.Context) (*model.FeedbackStats, error) {
	m := (*Memory)(d)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	s := &model.FeedbackStats{}
	var sum int
	for _, r := range m.Records {
		s.TotalRecords++
		if r.OverallRating != nil {
			s.RatedRecords++
			sum += *r.OverallRating
			if *r.OverallRating >= 4 {
				s.Positive++
			}
			if *r.OverallRating <= 2 {
				s.Negative++
			}
		}
	}
	if s.RatedRecords > 0 {
		s.AverageRating = float64(sum) / float64(s.RatedRecords)
	}
	return s, nil
}

// --- UserMemory ---

type memUserMemory Memory

func (um *memUserMemory) Get(ctx context.Context, subscriberID string) (*model.UserMemory, error) {
	m := (*Memory)(um)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	if mem, ok := m.Memories[subscriberID]; ok {
		out := *mem
		return &out, nil
	}
	return nil, model.ErrNotFound
}

func (um *memUserMemory) ApplyFeedback(ctx context.Context, subscriberID string, positive bool, tone, hookLine string) error {
	m := (*Memory)(um)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	mem, ok := m.Memories[subscriberID]
	if !ok {
		mem = &model.UserMemory{SubscriberID: subscriberID}
		m.Memories[subscriberID] = mem
	}
	if positive {
		mem.PositiveCount++
		if tone != "" {
			mem.PreferredTone = tone
		}
		if hookLine != "" {
			mem.LikedHooks = append(mem.LikedHooks, hookLine)
		}
	} else {
		mem.NegativeCount++
		if hookLine != "" {
			mem.DislikedHooks = append(mem.DislikedHooks, hookLine)
		}
	}
	mem.UpdateTime = m.now()
	return nil
}

var _ store.Store = (*Memory)(nil)
