package cache

import "fmt"

// Namespaced key builders matching §4.1's fixed key shapes. Keeping these as
// functions rather than ad-hoc Sprintf calls at every cache site avoids the
// typo-prone alternative of hand-formatting the same strings in every enricher.

func FileKey(projectID int64, path string) string {
	return fmt.Sprintf("file:%d:%s", projectID, path)
}

func BlastKey(projectID int64, path string) string {
	return fmt.Sprintf("blast:%d:%s", projectID, path)
}

func CorrKey(projectID int64, path string) string {
	return fmt.Sprintf("corr:%d:%s", projectID, path)
}

func IssueKey(projectID int64, path string) string {
	return fmt.Sprintf("issue:%d:%s", projectID, path)
}

func DecisionKey(projectID int64, path string) string {
	return fmt.Sprintf("decision:%d:%s", projectID, path)
}

func LearningKey(projectID int64, query string) string {
	return fmt.Sprintf("learning:%d:%s", projectID, query)
}

func TestKey(projectID int64, path string) string {
	return fmt.Sprintf("test:%d:%s", projectID, path)
}

func CodeIntelKey(projectID int64, path string) string {
	return fmt.Sprintf("codeintel:%d:%s", projectID, path)
}
