package prompt

// builtinTemplates maps template filename to content. Stage templates take
// {{spec_id}}, {{stage}}, {{agent}}, {{context}} (upstream artifacts) and,
// for sequential stages, {{transcript}} (accumulated prior agent output).
var builtinTemplates = map[string]string{
	"specify.md":   specifyTemplate,
	"plan.md":      planTemplate,
	"tasks.md":     tasksTemplate,
	"implement.md": implementTemplate,
	"validate.md":  validateTemplate,
	"audit.md":     auditTemplate,
}

const specifyTemplate = `# Specify: {{spec_id}}

You are {{agent}}, one of several independent agents drafting a specification.

## Input
{{context}}

## Instructions
1. Write a complete, unambiguous specification for the requested work
2. State every requirement as a testable assertion
3. List open questions separately; do not guess answers
4. Respond with a single JSON object: {"summary", "requirements", "open_questions"}
`

const planTemplate = `# Plan: {{spec_id}}

You are {{agent}}, planning independently from the agreed specification.

## Specification
{{context}}

## Instructions
1. Break the specification into an ordered implementation plan
2. Name the components touched and the order of work
3. Flag risks and dependencies between steps
4. Respond with a single JSON object: {"summary", "steps", "risks"}
`

const tasksTemplate = `# Tasks: {{spec_id}}

You are {{agent}}, deriving a task list from the agreed plan.

## Plan
{{context}}

## Instructions
1. Produce small, independently verifiable tasks with clear done-criteria
2. Preserve plan ordering; mark tasks that can proceed in parallel
3. Respond with a single JSON object: {"summary", "tasks"}
`

const implementTemplate = `# Implement: {{spec_id}}

You are {{agent}}, implementing the agreed task list.

## Tasks
{{context}}
{{#if transcript}}

## Work so far
Earlier agents on this stage produced the following. Build on it; do not redo
completed work.

{{transcript}}
{{/if}}

## Instructions
1. Work through the remaining tasks in order
2. Report each task as completed, blocked, or skipped with a reason
3. Respond with a single JSON object: {"summary", "completed", "blocked"}
`

const validateTemplate = `# Validate: {{spec_id}}

You are {{agent}}, independently validating the implementation.

## Implementation report
{{context}}

## Instructions
1. Check every requirement in the specification against the reported work
2. Report failures with the requirement and the observed behavior
3. Respond with a single JSON object: {"summary", "passed", "failures"}
`

const auditTemplate = `# Audit: {{spec_id}}

You are {{agent}}, auditing the completed pipeline run.

## Validation results
{{context}}
{{#if transcript}}

## Prior audit notes
{{transcript}}
{{/if}}

## Instructions
1. Confirm validation coverage is complete and failures were resolved
2. Note anything that should block sign-off
3. Respond with a single JSON object: {"summary", "approved", "blockers"}
`
