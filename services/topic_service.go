package services

import (
	"context"
	"fmt"
	"io"
	"strings"

	"qteams/models"
	"qteams/store"

	"gopkg.in/yaml.v3"
)

type TopicService struct {
	store *store.Store
}

func NewTopicService(st *store.Store) *TopicService {
	return &TopicService{store: st}
}

type CreateTopicRequest struct {
	Code string `json:"code" yaml:"code" binding:"required,max=20"`
	Name string `json:"name" yaml:"name" binding:"required,max=100"`
}

// topicFile is the layout of a topic import file:
//
//	topics:
//	  - code: "5.1"
//	    name: Geography
type topicFile struct {
	Topics []CreateTopicRequest `yaml:"topics"`
}

func (s *TopicService) ListTopics(ctx context.Context, code, name string) ([]models.Topic, error) {
	topics, err := s.store.WithContext(ctx).ListTopics(store.TopicFilter{Code: code, Name: name})
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	return topics, nil
}

func (s *TopicService) GetTopic(ctx context.Context, id uint) (*models.Topic, error) {
	topic, err := s.store.WithContext(ctx).GetTopic(id)
	if err != nil {
		return nil, normalize(err, "topic", "")
	}
	return topic, nil
}

func (s *TopicService) CreateTopic(ctx context.Context, req *CreateTopicRequest) (*models.Topic, error) {
	topic, err := validateTopic(req)
	if err != nil {
		return nil, err
	}
	if err := s.store.WithContext(ctx).CreateTopic(&topic); err != nil {
		return nil, normalize(err, "topic", fmt.Sprintf("topic %s already exists", topic.Code))
	}
	return &topic, nil
}

// ImportTopics creates or renames every topic in reqs by code, in one
// transaction. It returns the number of topics written.
func (s *TopicService) ImportTopics(ctx context.Context, reqs []CreateTopicRequest) (int, error) {
	seen := make(map[string]bool, len(reqs))
	topics := make([]models.Topic, 0, len(reqs))
	for i := range reqs {
		topic, err := validateTopic(&reqs[i])
		if err != nil {
			return 0, fmt.Errorf("topic %d: %w", i+1, err)
		}
		if seen[topic.Code] {
			return 0, ValidationError(fmt.Sprintf("topic %s is listed twice", topic.Code))
		}
		seen[topic.Code] = true
		topics = append(topics, topic)
	}

	err := s.store.Transaction(ctx, func(tx *store.Store) error {
		return tx.UpsertTopics(topics)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to import topics: %w", err)
	}
	return len(topics), nil
}

// ParseTopicsYAML reads a topic import file.
func ParseTopicsYAML(r io.Reader) ([]CreateTopicRequest, error) {
	var file topicFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse topics: %w", err)
	}
	return file.Topics, nil
}

func validateTopic(req *CreateTopicRequest) (models.Topic, error) {
	code, name := strings.TrimSpace(req.Code), strings.TrimSpace(req.Name)
	if code == "" || name == "" {
		return models.Topic{}, ValidationError("topic code and name are required")
	}
	if len(code) > 20 {
		return models.Topic{}, ValidationError("topic code is too long")
	}
	if len(name) > 100 {
		return models.Topic{}, ValidationError("topic name is too long")
	}
	return models.Topic{Code: code, Name: name}, nil
}
