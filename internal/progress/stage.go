package progress

import "enrichdash/pkg/contracts/events"

// Stage identifies one phase of the enrichment pipeline
type Stage string

const (
	StageURLValidation    Stage = "url-validation"
	StageWebScraping      Stage = "web-scraping"
	StageVMSCheck         Stage = "vms-check"
	StageReportGeneration Stage = "report-generation"
)

// TerminalStage is the stage whose completion completes the job
const TerminalStage = StageVMSCheck

// Stages lists every stage in pipeline order
var Stages = []Stage{
	StageURLValidation,
	StageWebScraping,
	StageVMSCheck,
	StageReportGeneration,
}

type stageInfo struct {
	ordinal int
	points  int // weight in percentage points
	queue   string
	label   string
}

var stageTable = map[Stage]stageInfo{
	StageURLValidation:    {ordinal: 0, points: 20, queue: events.QueueURLValidation, label: "Validating URLs"},
	StageWebScraping:      {ordinal: 1, points: 30, queue: events.QueueWebScraping, label: "Scraping Websites"},
	StageVMSCheck:         {ordinal: 2, points: 30, queue: events.QueueVMSCheck, label: "Checking VMS"},
	StageReportGeneration: {ordinal: 3, points: 20, queue: events.QueueReportGeneration, label: "Generating Reports"},
}

// Valid reports whether s is one of the four pipeline stages
func (s Stage) Valid() bool {
	_, ok := stageTable[s]
	return ok
}

// Ordinal returns the zero-based position of the stage in the pipeline, -1 if unknown
func (s Stage) Ordinal() int {
	info, ok := stageTable[s]
	if !ok {
		return -1
	}
	return info.ordinal
}

// Weight returns the stage's share of overall progress
func (s Stage) Weight() float64 {
	return float64(stageTable[s].points) / 100
}

// BaseOffset returns the summed weight of all stages before s
func (s Stage) BaseOffset() float64 {
	points := 0
	for _, prior := range Stages {
		if prior == s {
			break
		}
		points += stageTable[prior].points
	}
	return float64(points) / 100
}

// QueueName returns the queue that reports progress for the stage
func (s Stage) QueueName() string {
	return stageTable[s].queue
}

// Label returns the display label of the stage
func (s Stage) Label() string {
	if info, ok := stageTable[s]; ok {
		return info.label
	}
	return "Processing"
}

// StageFromQueue maps a pipeline queue name to its stage
func StageFromQueue(queue string) (Stage, bool) {
	for stage, info := range stageTable {
		if info.queue == queue {
			return stage, true
		}
	}
	return "", false
}
