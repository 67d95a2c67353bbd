// Package council implements the multi-model deliberation engine: stage 1
// fans the user's query out to every configured backend, stage 2 has each
// successful backend rank the anonymized responses of its peers, and stage 3
// hands the de-anonymized, consensus-ordered material to a chairman backend
// for the final answer. Failures below the stage level are recorded, never
// thrown; a turn fails only when stage 1 produces zero usable responses.
package council
