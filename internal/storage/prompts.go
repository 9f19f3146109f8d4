package storage

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sonarboard/sonarboard/internal/models"
	"go.uber.org/zap"
)

// PromptStore handles saved prompt template persistence
type PromptStore struct {
	store
	logger *zap.Logger
}

// NewPromptStore creates a prompt store rooted at dataDir. The first use
// of an empty data dir seeds the default templates.
func NewPromptStore(dataDir string, logger *zap.Logger) *PromptStore {
	s := &PromptStore{logger: logger}
	s.init(dataDir, "saved_prompts.json")
	return s
}

func (s *PromptStore) load() ([]models.SavedPrompt, error) {
	var prompts []models.SavedPrompt
	if err := s.readFile(&prompts); err != nil {
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}
	return prompts, nil
}

func (s *PromptStore) persist(prompts []models.SavedPrompt) error {
	if err := s.writeFile(prompts); err != nil {
		return fmt.Errorf("failed to persist prompts: %w", err)
	}
	return nil
}

// List returns all saved prompts, seeding the defaults when the
// collection file does not exist yet.
func (s *PromptStore) List() ([]models.SavedPrompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.exists() {
		defaults := defaultPrompts()
		if err := s.persist(defaults); err != nil {
			return nil, err
		}
		s.logger.Info("Seeded default prompt templates", zap.Int("count", len(defaults)))
		return defaults, nil
	}

	return s.load()
}

// Save appends a new prompt and returns its id
func (s *PromptStore) Save(name, content, description, category string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prompts, err := s.load()
	if err != nil {
		return "", err
	}

	prompt := models.SavedPrompt{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Content:     content,
		Category:    category,
		CreatedAt:   time.Now(),
		UsageCount:  0,
	}

	prompts = append(prompts, prompt)
	if err := s.persist(prompts); err != nil {
		return "", err
	}

	return prompt.ID, nil
}

// MarkUsed increments the prompt's usage count and stamps last_used.
// Unknown ids are a no-op.
func (s *PromptStore) MarkUsed(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prompts, err := s.load()
	if err != nil {
		return err
	}

	for i := range prompts {
		if prompts[i].ID == id {
			now := time.Now()
			prompts[i].LastUsed = &now
			prompts[i].UsageCount++
			return s.persist(prompts)
		}
	}
	return nil
}

// Delete removes the prompt with the given id. Unknown ids are a no-op.
func (s *PromptStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prompts, err := s.load()
	if err != nil {
		return err
	}

	kept := prompts[:0]
	for _, p := range prompts {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	return s.persist(kept)
}

// defaultPrompts returns the templates seeded into a fresh installation
func defaultPrompts() []models.SavedPrompt {
	now := time.Now()

	return []models.SavedPrompt{
		{
			ID:          uuid.NewString(),
			Name:        "Research Analysis",
			Description: "Comprehensive research analysis template",
			Category:    "Research",
			CreatedAt:   now,
			Content: "Provide a comprehensive analysis of the latest developments in artificial intelligence, focusing on:\n" +
				"1. Recent breakthroughs in large language models\n" +
				"2. Advances in computer vision and image generation\n" +
				"3. Progress in robotics and autonomous systems\n" +
				"4. Ethical considerations and regulatory developments\n" +
				"5. Industry applications and market trends\n\n" +
				"Please include specific examples, statistics, and cite recent sources.",
		},
		{
			ID:          uuid.NewString(),
			Name:        "Market Analysis",
			Description: "Stock market and financial analysis template",
			Category:    "Finance",
			CreatedAt:   now,
			Content: "Analyze the current global stock market trends with particular focus on:\n" +
				"- Technology sector performance\n" +
				"- Economic indicators affecting market sentiment\n" +
				"- Geopolitical events impacting international markets\n" +
				"- Cryptocurrency market correlation with traditional assets\n" +
				"- Investment recommendations for the next 6 months\n\n" +
				"Provide specific data, chart references, and expert opinions from financial institutions.",
		},
		{
			ID:          uuid.NewString(),
			Name:        "News Summary",
			Description: "Daily news summary template",
			Category:    "News",
			CreatedAt:   now,
			Content: "Create a comprehensive news summary for today covering:\n" +
				"- Breaking news in technology and business\n" +
				"- Political developments worldwide\n" +
				"- Scientific discoveries and health updates\n" +
				"- Environmental and climate change news\n" +
				"- Sports highlights and entertainment updates\n\n" +
				"Organize by category and include source citations for each major story.",
		},
		{
			ID:          uuid.NewString(),
			Name:        "Technical Analysis",
			Description: "Technical programming analysis template",
			Category:    "Technology",
			CreatedAt:   now,
			Content: "Conduct a detailed technical analysis on a specific programming topic:\n" +
				"1. Current best practices and methodologies\n" +
				"2. Performance considerations and optimization techniques\n" +
				"3. Security implications and vulnerabilities\n" +
				"4. Integration with modern frameworks and tools\n" +
				"5. Future trends and evolution in this area\n\n" +
				"Include code examples, benchmarks, and industry adoption statistics.",
		},
	}
}
