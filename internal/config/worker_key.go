package config

type WorkerKeyStruct struct {
	PersistAttemptsQueue      string
	PersistProctorEventsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAttemptsQueue:      "persist_attempts_queue",
	PersistProctorEventsQueue: "persist_proctor_events_queue",
}
