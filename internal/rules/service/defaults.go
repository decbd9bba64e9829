package service

import (
	"casebook_backend/internal/cases"
	"casebook_backend/internal/rules/repository"
)

// defaultRule synthesizes the safe starting rule for a status: disabled,
// no recipients, a generic template that names the transition. The same
// input always yields the same rule, so synthesizing is repeatable and
// nothing is written until an admin saves.
func defaultRule(status cases.Status) repository.RuleUpsert {
	label := status.Label()
	return repository.RuleUpsert{
		Status:      string(status),
		Enabled:     false,
		Roles:       []string{},
		Emails:      []string{},
		Departments: []string{},
		Subject:     "Case {{caseReference}}: " + label,
		Body: "Case {{caseReference}} at {{hospital}} has moved to " + label + ".\n\n" +
			"Procedure: {{procedureType}} - {{procedureName}}\n" +
			"Surgeon: {{surgeon}}\n" +
			"Surgery date: {{surgeryDate}} {{surgeryTime}}\n" +
			"Department: {{department}}\n" +
			"Submitted by: {{submittedBy}}\n\n" +
			"Special instructions: {{specialInstructions}}\n",
	}
}

// defaultMatrix returns the full synthesized matrix in workflow order.
func defaultMatrix() []repository.RuleUpsert {
	statuses := cases.AllStatuses()
	matrix := make([]repository.RuleUpsert, 0, len(statuses))
	for _, s := range statuses {
		matrix = append(matrix, defaultRule(s))
	}
	return matrix
}
