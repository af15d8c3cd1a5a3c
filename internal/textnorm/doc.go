// Package textnorm canonicalizes free-text track titles and artist names so they
// can be compared across catalogs and media sources.
//
// Normalization lower-cases text, unifies dash and colon separators, strips the
// promotional vocabulary that uploaders attach to titles ("official audio",
// "lyrics", "4k", ...) whether bare or bracketed, and folds the different
// spellings of "featuring" into a single token.
package textnorm
