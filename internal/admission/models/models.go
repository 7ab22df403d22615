package models

import "time"

// Submission is the set of fields a registrant provides. Field order matters:
// validation reports the first missing field in this order.
type Submission struct {
	Branch      string `json:"branch" validate:"required"`
	ChildBirth  string `json:"childBirth" validate:"required"`
	ChildName   string `json:"childName" validate:"required"`
	Gender      string `json:"gender" validate:"required"`
	ParentName  string `json:"parentName" validate:"required"`
	Relation    string `json:"relation" validate:"required"`
	ParentPhone string `json:"parentPhone" validate:"required"`
	AddrBase    string `json:"addrBase" validate:"required"`
	AddrDetail  string `json:"addrDetail" validate:"required"`
}

// FieldNames lists the submission fields in validation order.
var FieldNames = []string{
	"branch", "childBirth", "childName", "gender", "parentName",
	"relation", "parentPhone", "addrBase", "addrDetail",
}

// Record is an accepted submission as persisted in the ledger and forwarded
// to the webhook.
type Record struct {
	ID            string    `json:"id"`
	SubmittedAt   time.Time `json:"submittedAt"`
	SourceAddress string    `json:"sourceAddress"`
	Submission
}
