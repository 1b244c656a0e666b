package suggestion

import (
	"docassist-be/pkg/chat/message"
	"docassist-be/pkg/chat/upload"
)

// Action keys understood by the dispatcher
const (
	ActionExtractActionItems = "extract_action_items"
	ActionVisualizeData      = "visualize_data"
	ActionCreateTimeline     = "create_timeline"
	ActionSummarize          = "summarize"
	ActionAnalyzeDocument    = upload.ActionAnalyzeDocument
)

const fallbackResponse = "I've processed your request. Is there anything else you'd like me to do with this document?"

var responses = map[string]string{
	ActionExtractActionItems: "I've extracted the following action items from your meeting notes:\n\n" +
		"1. @John to finalize the Q3 product roadmap by Friday\n" +
		"2. @Sarah to schedule user testing sessions for the new feature\n" +
		"3. @Team to review the competitor analysis before next meeting\n" +
		"4. @Michael to update the project timeline in Jira",
	ActionVisualizeData: "I've created visualizations based on your financial data. " +
		"The charts show a 15% increase in revenue compared to last quarter, with marketing expenses decreasing by 8%. " +
		"Would you like me to send these visualizations to your team?",
	ActionCreateTimeline: "I've created a project timeline based on your planning document. " +
		"The critical path shows the product launch is scheduled for October 15th, with beta testing beginning on September 1st. " +
		"Would you like me to export this timeline to your project management tool?",
	ActionSummarize: "Here's a summary of your document:\n\n" +
		"The document outlines the company's strategic initiatives for the upcoming fiscal year, " +
		"focusing on market expansion, product innovation, and operational efficiency. " +
		"Key points include entering two new markets in Q2, launching three product enhancements in Q3, " +
		"and implementing a new CRM system by year-end.",
}

var analyses = map[upload.Kind]string{
	upload.KindMeetingNotes: "I've analyzed your meeting notes. I can see this is from a product team discussion " +
		"with several action items and decisions about the Q3 roadmap.",
	upload.KindFinancial: "I've analyzed your financial report. This appears to be a quarterly financial summary " +
		"with revenue figures, expenses, and projections for the next quarter.",
	upload.KindPlanning: "I've analyzed your project planning document. This contains project milestones, " +
		"team assignments, and deadlines for the upcoming product launch.",
}

const genericAnalysis = "I've analyzed your document and extracted the key information."

var followUps = map[upload.Kind]message.Suggestion{
	upload.KindMeetingNotes: {PromptText: "Would you like me to extract action items from these meeting notes?", ActionKey: ActionExtractActionItems},
	upload.KindFinancial:    {PromptText: "Would you like me to visualize the key financial data in this report?", ActionKey: ActionVisualizeData},
	upload.KindPlanning:     {PromptText: "Would you like me to create a timeline from this project document?", ActionKey: ActionCreateTimeline},
}

var summarizeFollowUp = message.Suggestion{PromptText: "Would you like me to summarize this document?", ActionKey: ActionSummarize}

// Respond returns the assistant text for actionKey. It is total: unknown keys get a generic answer.
func Respond(actionKey string, kind upload.Kind) string {
	if actionKey == ActionAnalyzeDocument {
		if text, ok := analyses[kind]; ok {
			return text
		}
		return genericAnalysis
	}
	if text, ok := responses[actionKey]; ok {
		return text
	}
	return fallbackResponse
}

// FollowUp returns the suggestion offered after actionKey, or nil
func FollowUp(actionKey string, kind upload.Kind) *message.Suggestion {
	if actionKey != ActionAnalyzeDocument {
		return nil
	}
	if s, ok := followUps[kind]; ok {
		return &s
	}
	s := summarizeFollowUp
	return &s
}
