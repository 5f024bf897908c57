package document

// SampleDocuments are created for every newly registered account.
func SampleDocuments() []CreateCommand {
	return []CreateCommand{
		{
			Title: "Welcome to Document Collaboration",
			Content: `# Welcome to Your Document Collaboration Platform!

This is your first document. You can:
- Edit this document by clicking the edit button
- Create new documents using the "+" button
- Share documents with collaborators
- Use the search feature to find documents quickly

## Getting Started
1. Create your first document
2. Invite collaborators
3. Start collaborating in real-time

Happy collaborating!`,
			Tags: []string{"welcome", "getting-started"},
		},
		{
			Title: "Project Ideas",
			Content: `# Project Ideas

## Current Projects
- [ ] Document collaboration platform
- [ ] User authentication system
- [ ] Real-time editing features

## Future Ideas
- [ ] Mobile app
- [ ] Advanced search
- [ ] Document templates

## Notes
Add your project ideas here and collaborate with your team!`,
			Tags: []string{"projects", "ideas"},
		},
		{
			Title: "Meeting Notes Template",
			Content: `# Meeting Notes

**Date:** [Insert Date]
**Time:** [Insert Time]
**Attendees:** [List Attendees]

## Agenda
1. [Topic 1]
2. [Topic 2]
3. [Topic 3]

## Discussion Points
- [Discussion point 1]
- [Discussion point 2]

## Action Items
- [ ] [Action item 1] - [Assignee] - [Due Date]
- [ ] [Action item 2] - [Assignee] - [Due Date]

## Next Meeting
**Date:** [Next Meeting Date]
**Time:** [Next Meeting Time]`,
			IsPublic: true,
			Tags:     []string{"template", "meeting", "notes"},
		},
	}
}
