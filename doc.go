/*
go-mcmot provides online multi-object identity association for detections
observed across frames and cameras.  Each detection is reduced to an
appearance embedding, matched by cosine similarity against every detection
seen before, and given a persistent track identity.  All detections and their
matches are kept in an association graph which can be exported as node
features plus a sparse adjacency and handed to a graph refinement model.

The core matcher lives in the tracker subdirectory, embedding extraction in
extractor and a reference GCN refinement model in refine.

See example usage in cmd/mcmot.
*/
package mcmot
