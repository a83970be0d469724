package contextgen

// Category groups agent types with similar briefing needs.
type Category string

const (
	CategoryOrchestrator Category = "orchestrator"
	CategoryDeveloper    Category = "developer"
	CategoryValidator    Category = "validator"
	CategorySpecialist   Category = "specialist"
	CategoryResearcher   Category = "researcher"
	CategoryWriter       Category = "writer"
)

// categoryByType is the static agent-type classification. Unknown types
// default to developer.
var categoryByType = map[string]Category{
	"orchestrator": CategoryOrchestrator,
	"architect":    CategoryOrchestrator,
	"planner":      CategoryOrchestrator,

	"developer": CategoryDeveloper,
	"engineer":  CategoryDeveloper,
	"fixer":     CategoryDeveloper,
	"builder":   CategoryDeveloper,

	"validator": CategoryValidator,
	"reviewer":  CategoryValidator,
	"tester":    CategoryValidator,
	"auditor":   CategoryValidator,

	"specialist":  CategorySpecialist,
	"security":    CategorySpecialist,
	"performance": CategorySpecialist,
	"database":    CategorySpecialist,

	"researcher": CategoryResearcher,
	"explorer":   CategoryResearcher,
	"analyst":    CategoryResearcher,

	"writer":     CategoryWriter,
	"documenter": CategoryWriter,
	"translator": CategoryWriter,
}

// Classify maps an agent type to its category.
func Classify(agentType string) Category {
	if c, ok := categoryByType[agentType]; ok {
		return c
	}
	return CategoryDeveloper
}

// sectionID names one brief section.
type sectionID string

const (
	sectionSession   sectionID = "session"
	sectionSnapshot  sectionID = "snapshot"
	sectionProgress  sectionID = "progress"
	sectionSubtasks  sectionID = "subtasks"
	sectionBlockings sectionID = "blockings"
	sectionMessages  sectionID = "messages"
	sectionHistory   sectionID = "history"
)

// sectionSpec pairs a section with its token cap.
type sectionSpec struct {
	id  sectionID
	cap int // token cap for this section's body
}

// templates lists each category's sections in priority order. When the
// overall budget runs out, trailing sections are cut first. The snapshot
// section only renders when a restored compact payload accompanies the
// request, so it costs nothing on cold-start briefs.
var templates = map[Category][]sectionSpec{
	CategoryOrchestrator: {
		{sectionSession, 200},
		{sectionSnapshot, 300},
		{sectionSubtasks, 600},
		{sectionBlockings, 400},
		{sectionMessages, 400},
		{sectionProgress, 200},
		{sectionHistory, 200},
	},
	CategoryDeveloper: {
		{sectionSession, 150},
		{sectionSnapshot, 300},
		{sectionSubtasks, 500},
		{sectionProgress, 300},
		{sectionBlockings, 300},
		{sectionHistory, 400},
		{sectionMessages, 300},
	},
	CategoryValidator: {
		{sectionSession, 150},
		{sectionSnapshot, 300},
		{sectionSubtasks, 400},
		{sectionHistory, 500},
		{sectionMessages, 300},
		{sectionProgress, 200},
		{sectionBlockings, 200},
	},
	CategorySpecialist: {
		{sectionSession, 150},
		{sectionSnapshot, 300},
		{sectionSubtasks, 500},
		{sectionProgress, 300},
		{sectionMessages, 400},
		{sectionBlockings, 200},
		{sectionHistory, 300},
	},
	CategoryResearcher: {
		{sectionSession, 200},
		{sectionSnapshot, 300},
		{sectionSubtasks, 400},
		{sectionHistory, 500},
		{sectionProgress, 300},
		{sectionMessages, 300},
		{sectionBlockings, 150},
	},
	CategoryWriter: {
		{sectionSession, 200},
		{sectionSnapshot, 300},
		{sectionProgress, 400},
		{sectionSubtasks, 400},
		{sectionMessages, 300},
		{sectionHistory, 300},
		{sectionBlockings, 150},
	},
}

// sectionTitles renders section headings.
var sectionTitles = map[sectionID]string{
	sectionSession:   "Session",
	sectionSnapshot:  "Last Compact",
	sectionProgress:  "Your Progress",
	sectionSubtasks:  "Assigned Subtasks",
	sectionBlockings: "Blockings",
	sectionMessages:  "Unread Messages",
	sectionHistory:   "Recent Activity",
}
