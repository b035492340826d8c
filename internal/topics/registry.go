package topics

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/joseph-ayodele/contracts-parser/constants"
	"github.com/joseph-ayodele/contracts-parser/internal/common"
	"github.com/joseph-ayodele/contracts-parser/internal/fields"
)

// ExtractResult is the data extracted for one topic.
type ExtractResult struct {
	Topic      string     `json:"topic"`
	Data       fields.Map `json:"data"`
	Confidence float64    `json:"confidence,omitempty"`
}

// TopicScore is the completeness of one topic.
type TopicScore struct {
	Topic           string  `json:"topic"`
	Weight          float64 `json:"weight"`
	CompletedFields int     `json:"completedFields"`
	TotalFields     int     `json:"totalFields"`
	Percentage      float64 `json:"percentage"`
	Score           float64 `json:"score"`
}

// CompletenessResult aggregates topic scores.
type CompletenessResult struct {
	Score       float64      `json:"score"`
	Total       float64      `json:"total"`
	MaxScore    float64      `json:"maxScore"`
	TopicScores []TopicScore `json:"topicScores"`
}

// Registry holds topic definitions. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	topics map[string]TopicDefinition
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{topics: make(map[string]TopicDefinition), logger: logger}
}

// NewDefaultRegistry returns a registry preloaded with DefaultTopics.
func NewDefaultRegistry(logger *slog.Logger) (*Registry, error) {
	r := NewRegistry(logger)
	if err := r.RegisterAll(DefaultTopics); err != nil {
		return nil, err
	}
	return r, nil
}

// Register adds a topic. Names are unique.
func (r *Registry) Register(t TopicDefinition) error {
	if t.Name == "" {
		return common.NewAppError("TOPIC_INVALID", "topic name is required", common.ErrInvalidInput)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.topics[t.Name]; exists {
		return common.NewAppError("TOPIC_DUPLICATE", fmt.Sprintf("topic %q already registered", t.Name), common.ErrDuplicateTopic)
	}
	r.topics[t.Name] = t
	r.logger.Debug("topics.register", "topic", t.Name, "fields", len(t.Fields), "weight", t.Weight)
	return nil
}

// RegisterAll registers topics one by one and stops at the first failure.
// Topics registered before the failure stay registered.
func (r *Registry) RegisterAll(ts []TopicDefinition) error {
	for _, t := range ts {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// GetTopic looks up a topic by name.
func (r *Registry) GetTopic(name string) (TopicDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.topics[name]
	if !ok {
		return TopicDefinition{}, common.NewAppError("TOPIC_NOT_FOUND", fmt.Sprintf("topic %q", name), common.ErrTopicNotFound)
	}
	return t, nil
}

// Topics returns all topics sorted by order, then name.
func (r *Registry) Topics() []TopicDefinition {
	r.mu.RLock()
	out := make([]TopicDefinition, 0, len(r.topics))
	for _, t := range r.topics {
		out = append(out, t)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// GetTopicsByOrder returns topics with min <= Order <= max.
func (r *Registry) GetTopicsByOrder(min, max int) []TopicDefinition {
	var out []TopicDefinition
	for _, t := range r.Topics() {
		if t.Order >= min && t.Order <= max {
			out = append(out, t)
		}
	}
	return out
}

// TopicsForContractType resolves the topic batch of a contract type.
func (r *Registry) TopicsForContractType(ct constants.ContractType) ([]TopicDefinition, error) {
	names, ok := ContractTypeTopicBatches[ct]
	if !ok {
		names = ContractTypeTopicBatches[constants.Mixed]
	}
	out := make([]TopicDefinition, 0, len(names))
	for _, n := range names {
		t, err := r.GetTopic(n)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// GetMissingFields returns the required fields of topic that data has no value for.
func (r *Registry) GetMissingFields(topic string, data fields.Map) ([]string, error) {
	t, err := r.GetTopic(topic)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, f := range t.Fields {
		if f.Required && !data.Has(f.Name) {
			missing = append(missing, f.Name)
		}
	}
	return missing, nil
}

// CalculateCompleteness scores results against every registered topic. Topics without
// a result count as zero fields present. Several results for one topic are merged,
// earlier values winning.
func (r *Registry) CalculateCompleteness(results []ExtractResult) CompletenessResult {
	byTopic := make(map[string]fields.Map)
	for _, res := range results {
		m, ok := byTopic[res.Topic]
		if !ok {
			m = fields.Map{}
			byTopic[res.Topic] = m
		}
		m.FillMissing(res.Data)
	}

	var out CompletenessResult
	for _, t := range r.Topics() {
		data := byTopic[t.Name]
		ts := TopicScore{Topic: t.Name, Weight: t.Weight, TotalFields: len(t.Fields)}
		for _, f := range t.Fields {
			if data.Has(f.Name) {
				ts.CompletedFields++
			}
		}
		if ts.TotalFields > 0 {
			ts.Percentage = float64(ts.CompletedFields) / float64(ts.TotalFields) * 100
		}
		ts.Score = t.Weight * ts.Percentage / 100
		out.TopicScores = append(out.TopicScores, ts)
		out.Total += ts.Score
		out.MaxScore += t.Weight
	}
	if out.MaxScore > 0 {
		out.Score = 100 * out.Total / out.MaxScore
	}
	return out
}
