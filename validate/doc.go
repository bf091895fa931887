// Package validate checks the chunks of stored documents.
//
// A Validator reads the embedded and table artifacts of every STORED
// document and reports the token size distribution, table reference
// integrity and content issues such as empty text, token counts that
// disagree with the tokenizer or broken chunk sequences.
package validate
