package config

type WorkerKeyStruct struct {
	PersistGradeAuditQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistGradeAuditQueue: "persist_grade_audit_queue",
}
