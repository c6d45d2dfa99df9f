package config

type WorkerKeyStruct struct {
	PersistAnswersQueue    string
	PersistViolationsQueue string
	PersistResultsQueue    string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAnswersQueue:    "persist_answers_queue",
	PersistViolationsQueue: "persist_violations_queue",
	PersistResultsQueue:    "persist_results_queue",
}
