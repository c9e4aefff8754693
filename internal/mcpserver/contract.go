package mcpserver

// NoteFormatContract describes the Markdown dialect create_note accepts and
// how it maps onto stored notes.
const NoteFormatContract = `# notechain Note Format Contract

Notes are stored as plain text plus formatting ranges, not as Markdown.
create_note parses the Markdown below into that form; anything outside this
dialect is kept as literal text.

## Structure

` + "```" + `markdown
---
title: Human-readable title        # OPTIONAL - otherwise the first "# " heading
labels:                             # OPTIONAL - YAML list ("tags" also accepted)
  - work
  - project-x
pinned: true                        # OPTIONAL
---

# Title (used when frontmatter has none; removed from the body)

Body text with **bold**, *italic* or _italic_, ` + "`" + `monospace` + "`" + `,
~~strikethrough~~ and [links](https://example.com).
` + "```" + `

## Rules

1. **Inline formatting only.** Headings below the title, tables, images and
   block quotes are not interpreted.
2. **Escapes.** Prefix any of ` + "`" + `\ * _ ~ ` + "`" + "`" + ` [ ] ( ) #` + "`" + ` with a backslash to keep it literal.
3. **Labels** come from frontmatter and from inline ` + "`" + `#hashtags` + "`" + `.
4. **Checklists.** A body made only of task lines becomes a checklist note:
   ` + "`" + `- [ ] todo` + "`" + `, ` + "`" + `- [x] done` + "`" + `; indent a line to make it a child item.
   Checklists are never split.
5. **Links to other notes** use ` + "`" + `note://<id>/<KIND>` + "`" + `, e.g. ` + "`" + `[see](note://42/NOTE)` + "`" + `.
6. **Long notes.** A body longer than the configured ceiling is stored as a
   chain of parts titled "Title", "Title (1)", "Title (2)", ... Every part but
   the last ends with an "Open next part" link. Use get_chain to list them.

## Example

` + "```" + `markdown
---
labels: [meeting-notes]
---
# Weekly standup 2025-01-20

Attendees: **Alice**, Bob. Follow-up in [roadmap](note://12/NOTE). #project-x
` + "```" + `
`
