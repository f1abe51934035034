package metadata

import (
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/botforge/chatflow/flow"
	"github.com/botforge/chatflow/model"
	"github.com/botforge/chatflow/persistence"
	c "github.com/patrickmn/go-cache"
)

// Service owns flow definitions: validation on save, compiled-flow
// caching on read. Compiled flows are immutable so caching them is safe
// across conversations.
type Service interface {
	GetFlow(name string) (*flow.Flow, error)
	GetDefinition(name string) (*model.FlowDef, error)
	ListActiveDefinitions() ([]model.FlowDef, error)
	SaveDefinition(def model.FlowDef) error
	DeleteDefinition(name string) error
	ValidateDefinition(def model.FlowDef) error
}

type serviceImpl struct {
	storage    persistence.MetadataStorage
	cache      *c.Cache
	httpClient *resty.Client
}

func NewService(storage persistence.MetadataStorage) Service {
	return &serviceImpl{
		storage:    storage,
		cache:      c.New(10*time.Minute, 10*time.Minute),
		httpClient: resty.New().SetRetryCount(0),
	}
}

func (s *serviceImpl) GetFlow(name string) (*flow.Flow, error) {
	if cached, found := s.cache.Get(name); found {
		return cached.(*flow.Flow), nil
	}
	def, err := s.storage.GetFlowDefinition(name)
	if err != nil {
		return nil, err
	}
	fl, err := flow.Convert(def, s.httpClient)
	if err != nil {
		return nil, err
	}
	s.cache.Set(name, fl, c.DefaultExpiration)
	return fl, nil
}

func (s *serviceImpl) GetDefinition(name string) (*model.FlowDef, error) {
	return s.storage.GetFlowDefinition(name)
}

func (s *serviceImpl) ListActiveDefinitions() ([]model.FlowDef, error) {
	defs, err := s.storage.ListFlowDefinitions()
	if err != nil {
		return nil, err
	}
	active := make([]model.FlowDef, 0, len(defs))
	for _, def := range defs {
		if def.Active {
			active = append(active, def)
		}
	}
	return active, nil
}

func (s *serviceImpl) SaveDefinition(def model.FlowDef) error {
	if err := flow.Validate(&def); err != nil {
		return err
	}
	if err := s.storage.SaveFlowDefinition(def); err != nil {
		return err
	}
	s.cache.Delete(def.Name)
	return nil
}

func (s *serviceImpl) DeleteDefinition(name string) error {
	if err := s.storage.DeleteFlowDefinition(name); err != nil {
		return err
	}
	s.cache.Delete(name)
	return nil
}

func (s *serviceImpl) ValidateDefinition(def model.FlowDef) error {
	return flow.Validate(&def)
}
