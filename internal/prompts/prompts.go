// Package prompts renders the instructions sent to the completion service at
// each step of a turn.
package prompts

import (
	"encoding/json"
	"fmt"
	"strings"
)

const routeInstructions = `You need to decide if this request needs an API call or if it is referring to data it already has and is just asking for a follow up.
If there is only one question, it most likely needs API. If it asks for more data, stats or matches, it needs API.
Respond with just 'API' or 'Follow Up'.

User Query: %s

Current Data: %s`

const extractInstructions = `Extract the name from the user's query. The name could be a player name or a team name. Return the name as a string and only the name.

%s`

const generateInstructions = `Your task is to interpret the user's query and generate the appropriate %s query that will be used for execution.
Do not make up any fields, only use the ones given for any request. Double check them to make sure you are using a true field that exists in the table.
Compare names case-insensitively. Return just the SQL query and DO NOT format the query using triple backticks or code blocks.

%s
%s
%s
Today's date: %s

%s`

const correctInstructions = `An error has occurred in this %s query. Adjust the query to fix the error so it can be run again. Use the table schema and examples to help solve it. Make sure all columns actually exist.

%s
%s
SQL Error: %s

SQL Query: %s

Return only the adjusted query. Return it as a string and DO NOT format the query using triple backticks or code blocks.`

const summarizeInstructions = `Summarize the results of the query for the user based on their question and the query result.
Today's date: %s

Original Query: %s

Query Results: %s`

const followUpInstructions = `Answer the user's follow up question using only the data already fetched for the conversation.
Today's date: %s

Original Query: %s

Query Results: %s`

// Builder renders prompts for one database. Schema and Dialect are fixed for
// the lifetime of the process.
type Builder struct {
	Schema  string
	Dialect string
	Hints   *Hints
}

func (b *Builder) Route(question string, results any) string {
	return fmt.Sprintf(routeInstructions, question, FormatResults(results))
}

func (b *Builder) ExtractName(question string) string {
	return fmt.Sprintf(extractInstructions, question)
}

func (b *Builder) Generate(question, date string) string {
	return fmt.Sprintf(generateInstructions, b.dialect(), b.Schema, b.officialNames(), b.examples(), date, question)
}

func (b *Builder) Correct(query, sqlErr string) string {
	return fmt.Sprintf(correctInstructions, b.dialect(), b.Schema, b.examples(), sqlErr, query)
}

func (b *Builder) Summarize(question, date string, results any) string {
	return fmt.Sprintf(summarizeInstructions, date, question, FormatResults(results))
}

func (b *Builder) SummarizeFollowUp(question, date string, results any) string {
	return fmt.Sprintf(followUpInstructions, date, question, FormatResults(results))
}

func (b *Builder) dialect() string {
	if b.Dialect == "postgres" {
		return "PostgreSQL"
	}
	return "SQLite"
}

func (b *Builder) officialNames() string {
	if b.Hints == nil || len(b.Hints.Players) == 0 {
		return ""
	}
	return "Official Player Names (Adjust to these): " + strings.Join(b.Hints.Players, ", ") + "\n"
}

func (b *Builder) examples() string {
	if b.Hints == nil || len(b.Hints.Examples) == 0 {
		return ""
	}
	var s strings.Builder
	s.WriteString("Examples:\n")
	for i, ex := range b.Hints.Examples {
		fmt.Fprintf(&s, "%d. User Query: %s\n   SQL Query: `%s`\n", i+1, ex.Question, ex.SQL)
	}
	return s.String()
}

// FormatResults renders a result set for a prompt. Nil renders as "None".
func FormatResults(results any) string {
	if results == nil {
		return "None"
	}
	b, err := json.Marshal(results)
	if err != nil || string(b) == "null" {
		return "None"
	}
	return string(b)
}
