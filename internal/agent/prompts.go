package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/arclight-ai/opsdeck/internal/model"
)

// Prompt templates per task type. The {placeholder} fields are filled from
// the request's task parameters; missing parameters render as "Unknown" so a
// sparse request still produces a usable prompt.

var systemPrompts = map[model.TaskType]string{
	model.TaskLeadSummary: `You are an AI assistant helping Sales Development Representatives (SDRs) qualify and research leads.

Your role:
- Summarize lead information concisely
- Identify industry fit and use case potential
- Suggest relevant qualification questions
- Recommend next steps

Constraints:
- Never fabricate data or quotes
- If information is incomplete, say so explicitly
- Stay within documented product capabilities
- Escalate pricing, legal, or executive topics

Output format:
- Company Overview (2-3 sentences)
- Industry & Use Case Fit
- Suggested Qualification Questions (2-3)
- Recommended Next Steps
- Confidence: [High/Medium/Low]`,

	model.TaskFollowUp: `You are an AI assistant helping Account Executives (AEs) with customer follow-ups.

Your role:
- Suggest personalized follow-up actions based on last interaction
- Recommend relevant resources (case studies, docs, proof points)
- Provide timeline guidance for next engagement

Constraints:
- Never write final customer communications (provide drafts only)
- Don't make product commitments or roadmap promises
- Escalate if legal, pricing, or executive involvement needed

Output format:
- Follow-Up Action (email, call, meeting)
- Key Message Points (2-3 bullets)
- Resources to Share (links or titles)
- Timing Recommendation
- Confidence: [High/Medium/Low]`,

	model.TaskRiskAnalysis: `You are an AI assistant helping sales teams identify and mitigate deal risks.

Your role:
- Analyze deal health based on activity patterns and engagement
- Identify risk signals (stalled deals, missing stakeholders, etc.)
- Suggest mitigation actions
- Recommend escalation if needed

Constraints:
- Base analysis only on provided data
- Don't speculate on customer intent without evidence
- Escalate high-risk scenarios to manager review

Output format:
- Risk Level: [Low/Medium/High]
- Key Risk Signals (bullet list)
- Suggested Mitigation Actions (2-3)
- Escalation Recommendation (if applicable)
- Confidence: [High/Medium/Low]`,

	model.TaskDataHygiene: `You are an AI assistant helping Sales Operations maintain CRM data quality.

Your role:
- Identify incomplete or outdated CRM records
- Suggest data enrichment opportunities
- Flag duplicate records
- Validate contact information completeness

Constraints:
- Never update CRM fields autonomously
- Only flag issues, don't fix them
- Respect data privacy guidelines

Output format:
- Data Quality Issues (bullet list)
- Suggested Enrichments
- Priority Level: [High/Medium/Low]
- Confidence: [High/Medium/Low]`,
}

// userPromptFields declares which parameters each task's user prompt carries,
// in render order.
var userPromptFields = map[model.TaskType][]string{
	model.TaskLeadSummary:  {"lead_name", "company_name", "industry", "source", "additional_context"},
	model.TaskFollowUp:     {"customer_name", "interaction_date", "interaction_type", "summary", "deal_stage"},
	model.TaskRiskAnalysis: {"deal_name", "deal_stage", "last_activity_date", "engagement_summary", "stakeholders"},
	model.TaskDataHygiene:  {"record_type", "record_name", "fields_present", "fields_missing"},
}

var userPromptHeaders = map[model.TaskType]string{
	model.TaskLeadSummary:  "Lead Information:",
	model.TaskFollowUp:     "Last Interaction Summary:",
	model.TaskRiskAnalysis: "Deal Information:",
	model.TaskDataHygiene:  "CRM Record:",
}

// SystemPrompt returns the system prompt for a task type; unknown types fall
// back to the lead-summary prompt.
func SystemPrompt(t model.TaskType) string {
	if p, ok := systemPrompts[t]; ok {
		return p
	}
	return systemPrompts[model.TaskLeadSummary]
}

// UserPrompt renders the task parameters into the task's prompt template.
// Declared fields render first in order; any extra parameters follow sorted,
// so nothing the caller supplies is silently dropped.
func UserPrompt(t model.TaskType, params map[string]string) string {
	fields, ok := userPromptFields[t]
	if !ok {
		fields = userPromptFields[model.TaskLeadSummary]
	}

	header, ok := userPromptHeaders[t]
	if !ok {
		header = userPromptHeaders[model.TaskLeadSummary]
	}

	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")

	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		v := params[f]
		if v == "" {
			v = "Unknown"
		}
		fmt.Fprintf(&b, "%s: %s\n", fieldLabel(f), v)
		seen[f] = true
	}

	var extras []string
	for k := range params {
		if !seen[k] {
			extras = append(extras, k)
		}
	}
	sort.Strings(extras)
	for _, k := range extras {
		fmt.Fprintf(&b, "%s: %s\n", fieldLabel(k), params[k])
	}

	b.WriteString("\nPlease respond following the specified output format.")
	return b.String()
}

// fieldLabel turns a snake_case parameter name into a prompt label.
func fieldLabel(field string) string {
	parts := strings.Split(field, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

// Mock responses used when no inference token is configured, so the tool
// stays demoable offline.
var mockResponses = map[model.TaskType]string{
	model.TaskLeadSummary: `**Company Overview**
A mid-market organization with potential fit for modern data platform and AI capabilities.

**Industry & Use Case Fit**
- Likely use cases: Data analytics, real-time data streaming, ML/AI workloads
- Industry fit: Moderate to strong based on data-intensive operations

**Suggested Qualification Questions**
1. What are your current data infrastructure challenges?
2. Are you currently using cloud data platforms or streaming technologies?
3. Do you have active ML/AI initiatives or real-time data needs?

**Recommended Next Steps**
- Schedule discovery call within 24-48 hours
- Research company tech stack (LinkedIn, job postings)
- Prepare industry-specific use cases

**Confidence**: Medium`,

	model.TaskFollowUp: `**Follow-Up Action**
Send personalized follow-up email within 24 hours

**Key Message Points**
- Thank customer for their time during last interaction
- Reference specific topics discussed
- Propose clear next steps with timeline

**Resources to Share**
- Relevant case study for their industry
- Product documentation aligned with their use case

**Timing Recommendation**
Reach out within 24 hours, propose next meeting within 3-5 business days

**Confidence**: Medium`,

	model.TaskRiskAnalysis: `**Risk Level**: Medium

**Key Risk Signals**
- Extended period without customer engagement
- Missing key stakeholder involvement
- Unclear next steps or timeline

**Suggested Mitigation Actions**
1. Re-engage via multi-threaded outreach (email + LinkedIn)
2. Offer value-add resources (case study, technical whitepaper)
3. Propose executive briefing or ROI workshop

**Escalation Recommendation**
If no response within 3-5 business days, consider manager involvement

**Confidence**: Medium`,

	model.TaskDataHygiene: `**Data Quality Issues**
- Incomplete contact information
- Missing industry or company size fields
- Outdated last activity timestamp

**Suggested Enrichments**
- Update from LinkedIn for role and company info
- Validate email deliverability

**Priority Level**: Medium

**Confidence**: Medium`,
}

// MockResponse returns the offline fallback response for a task type.
func MockResponse(t model.TaskType) string {
	if r, ok := mockResponses[t]; ok {
		return r
	}
	return mockResponses[model.TaskLeadSummary]
}
