package core

import "strings"

// CategoryKey identifies one of the six life areas a goal can belong to.
// It is a closed set; anything else read from storage is coerced through
// InferCategory.
type CategoryKey string

const (
	BodyHealth    CategoryKey = "body&health"
	MindFocus     CategoryKey = "mind&focus"
	Career        CategoryKey = "career"
	Financial     CategoryKey = "financial"
	Relationships CategoryKey = "relationships"
	Legacy        CategoryKey = "legacy"
)

// Legacy category tags written by older ledger versions. They are not
// CategoryKeys; NormalizeCategoryTag folds them into Financial plus a
// TaskKind at ingestion.
const (
	legacyExpenseTag = "money_expense"
	legacyEarningTag = "money_earning"
)

// CategoryInfo carries the display metadata and storage slug for a category.
type CategoryInfo struct {
	Key   CategoryKey
	Name  string
	Emoji string
	Color string
	// Slug is the fragment used in the per-category storage key
	// ("@health_goals" etc.). Financial goals live in the money ledger.
	Slug string
}

// Categories lists all categories in presentation order.
var Categories = []CategoryInfo{
	{Key: BodyHealth, Name: "Body & Health", Emoji: "💪", Color: "#e74c3c", Slug: "health"},
	{Key: MindFocus, Name: "Mind & Focus", Emoji: "🧠", Color: "#9b59b6", Slug: "mind"},
	{Key: Career, Name: "Career", Emoji: "💼", Color: "#3498db", Slug: "career"},
	{Key: Financial, Name: "Financial", Emoji: "💰", Color: "#f39c12", Slug: "money"},
	{Key: Relationships, Name: "Relationships", Emoji: "❤️", Color: "#f39c12", Slug: "relationships"},
	{Key: Legacy, Name: "Legacy", Emoji: "🌟", Color: "#8e44ad", Slug: "legacy"},
}

// GoalCategories lists the categories that own a per-category goal store.
// Financial is excluded: its goals are savings goals in the money ledger.
func GoalCategories() []CategoryInfo {
	out := make([]CategoryInfo, 0, len(Categories)-1)
	for _, c := range Categories {
		if c.Key == Financial {
			continue
		}
		out = append(out, c)
	}
	return out
}

// CategoryByKey returns the metadata for a key, reporting whether the key
// is a member of the closed set.
func CategoryByKey(key CategoryKey) (CategoryInfo, bool) {
	for _, c := range Categories {
		if c.Key == key {
			return c, true
		}
	}
	return CategoryInfo{}, false
}

// CategoryBySlug resolves a storage slug ("health", "mind", ...).
func CategoryBySlug(slug string) (CategoryInfo, bool) {
	for _, c := range Categories {
		if c.Slug == slug {
			return c, true
		}
	}
	return CategoryInfo{}, false
}

// IsValid reports whether the key belongs to the closed category set.
func (k CategoryKey) IsValid() bool {
	_, ok := CategoryByKey(k)
	return ok
}

// inferenceRule maps a set of keywords to the category they indicate.
type inferenceRule struct {
	category CategoryKey
	keywords []string
}

// inferenceRules is ordered; the first rule with a matching keyword wins.
var inferenceRules = []inferenceRule{
	{BodyHealth, []string{"health", "fitness", "exercise", "diet"}},
	{MindFocus, []string{"learn", "study", "read", "focus"}},
	{Career, []string{"work", "career", "job", "business"}},
	{Financial, []string{"money", "budget", "save", "invest"}},
	{Relationships, []string{"family", "friend", "relationship", "love"}},
	{Legacy, []string{"legacy", "impact", "contribute", "give back"}},
}

// InferCategory classifies free text by keyword match. Text matching no
// rule defaults to MindFocus; that is not an error.
func InferCategory(text string) CategoryKey {
	lower := strings.ToLower(text)
	for _, rule := range inferenceRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.category
			}
		}
	}
	return MindFocus
}

// NormalizeCategoryTag maps an arbitrary stored category tag to a member
// of the closed set plus the task kind it implies. Legacy money tags
// become Financial expenses/earnings; unknown tags are inferred from the
// given fallback text.
func NormalizeCategoryTag(tag, fallbackText string) (CategoryKey, TaskKind) {
	switch tag {
	case legacyExpenseTag:
		return Financial, KindExpense
	case legacyEarningTag:
		return Financial, KindEarning
	}
	if key := CategoryKey(tag); key.IsValid() {
		return key, KindGoal
	}
	return InferCategory(fallbackText), KindGoal
}
