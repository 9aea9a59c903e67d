package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"stylegen/internal/domain"
	"stylegen/internal/providers"
)

type memoryStore struct {
	mu        sync.Mutex
	jobs      map[string]domain.GenerationJob
	seq       int
	failWrite bool
	merged    map[string]map[string]any
}

func newMemoryStore() *memoryStore {
	return &memoryStore{jobs: map[string]domain.GenerationJob{}, merged: map[string]map[string]any{}}
}

func (m *memoryStore) Create(_ context.Context, in domain.NewGeneration) (domain.GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	props, _ := json.Marshal(in.Properties)
	now := time.Now().UTC()
	job := domain.GenerationJob{
		ID:         fmt.Sprintf("G%d", m.seq),
		TemplateID: in.TemplateID,
		Mode:       in.Mode,
		Provider:   in.Provider,
		Status:     domain.StatusProcessing,
		Properties: props,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.jobs[job.ID] = job
	return job, nil
}

func (m *memoryStore) Get(_ context.Context, id string) (domain.GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return domain.GenerationJob{}, domain.ErrJobNotFound
	}
	return job, nil
}

func (m *memoryStore) TransitionToTerminal(ctx context.Context, id string, out domain.Outcome) (domain.GenerationJob, bool, error) {
	if err := out.Validate(); err != nil {
		return domain.GenerationJob{}, false, err
	}
	if err := ctx.Err(); err != nil {
		return domain.GenerationJob{}, false, domain.Unavailable(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite {
		return domain.GenerationJob{}, false, domain.Unavailable(fmt.Errorf("connection refused"))
	}
	job, ok := m.jobs[id]
	if !ok || job.Status != domain.StatusProcessing {
		return domain.GenerationJob{}, false, nil
	}
	job.Status = out.Status
	job.ResultImage = out.ResultImage
	job.ErrorMessage = out.ErrorMessage
	job.UpdatedAt = time.Now().UTC()
	m.jobs[id] = job
	return job, true, nil
}

func (m *memoryStore) MergeProperties(_ context.Context, id string, props map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return domain.ErrJobNotFound
	}
	if m.merged[id] == nil {
		m.merged[id] = map[string]any{}
	}
	for k, v := range props {
		m.merged[id][k] = v
	}
	return nil
}

func (m *memoryStore) job(id string) domain.GenerationJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[id]
}

func (m *memoryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.StatusEvent
}

func (p *recordingPublisher) Publish(_ context.Context, evt domain.StatusEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) all() []domain.StatusEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.StatusEvent(nil), p.events...)
}

type staticRegistry map[string]domain.Template

func (r staticRegistry) Lookup(_ context.Context, id string) (domain.Template, error) {
	tpl, ok := r[id]
	if !ok {
		return domain.Template{}, domain.NewError(domain.ErrTemplateNotFound, "template "+id+" not found")
	}
	return tpl, nil
}

type fakeBlocking struct {
	name  string
	img   providers.Image
	err   error
	block bool
	calls int
	last  providers.Request
}

func (f *fakeBlocking) Name() string { return f.name }

func (f *fakeBlocking) Run(ctx context.Context, req providers.Request) (providers.Image, error) {
	f.calls++
	f.last = req
	if f.block {
		<-ctx.Done()
		return providers.Image{}, ctx.Err()
	}
	return f.img, f.err
}

type fakeNonBlocking struct {
	name     string
	acc      providers.Acceptance
	err      error
	calls    int
	callback string
}

func (f *fakeNonBlocking) Name() string { return f.name }

func (f *fakeNonBlocking) Submit(_ context.Context, _ providers.Request, callbackURL string) (providers.Acceptance, error) {
	f.calls++
	f.callback = callbackURL
	return f.acc, f.err
}

type savedImages struct {
	saved map[string][]byte
	err   error
}

func (s *savedImages) SaveGenerated(_ context.Context, jobID string, data []byte) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if s.saved == nil {
		s.saved = map[string][]byte{}
	}
	s.saved[jobID] = data
	return "https://api.example.com/static/generations/" + jobID + ".png", nil
}
