// Package pages walks the document page tree and exposes its leaves.
//
// PDF documents organize pages hierarchically: intermediate /Pages nodes
// hold /Kids arrays, leaves are /Page dictionaries. [PageTree] flattens the
// tree once, in order, guarding against reference cycles and excessive
// nesting:
//
//	tree := pages.NewPageTree(pagesDict, resolver)
//	count, _ := tree.Count()
//	page, _ := tree.GetPage(0) // 0-indexed
//
// # Inheritance
//
// /Resources, /MediaBox, /CropBox, and /Rotate set on intermediate nodes
// apply to every page beneath them, with deeper entries shadowing shallower
// ones. The walk resolves and threads these down, so a [Page] answers
// attribute queries from the accumulated chain, not just its own dictionary.
//
// # Object Resolution
//
// The [ObjectResolver] interface abstracts object lookup so the tree does
// not depend on the full reader implementation. Any resolver that follows
// indirect references satisfies it.
package pages
