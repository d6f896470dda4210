// Package prompts loads the versioned prompt templates used by the reasoner.
//
// Templates use {query} and {context} placeholders; "{{" and "}}" produce
// literal braces. Any other placeholder, an unbalanced brace, or a template
// without {query} is rejected with a TEMPLATE_ERROR when the template is
// loaded. Built-in templates are embedded; a directory can override them.
package prompts
