package printer

import "github.com/slok/stager/internal/model"

// Printer knows how to print stage information in different formats.
type Printer interface {
	PrintStageResult(res model.StageResult) error
	PrintHistory(runs []model.StageRun) error
	PrintDeadline(info model.DeadlineInfo) error
	PrintMessage(msg string) error
}
