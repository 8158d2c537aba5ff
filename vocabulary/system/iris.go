// Package system provides the IRIs of the system and content models that are
// registered for the default tenant at startup.
package system

import "github.com/c360studio/semdict/qname"

// Namespace IRIs and their conventional prefixes.
const (
	Namespace = "https://semdict.dev/model/system/1.0"
	Prefix    = "sys"

	ContentNamespace = "https://semdict.dev/model/content/1.0"
	ContentPrefix    = "cm"
)

// Model local names.
const (
	ModelName        = "systemmodel"
	ContentModelName = "contentmodel"
)

// Class names declared by the system model.
var (
	TypeBase            = qname.New(Namespace, "base")
	TypeContainer       = qname.New(Namespace, "container")
	AspectReferenceable = qname.New(Namespace, "referenceable")
	AspectLocalized     = qname.New(Namespace, "localized")
)

// Property names declared by the system model.
var (
	PropNodeUUID = qname.New(Namespace, "node-uuid")
	PropLocale   = qname.New(Namespace, "locale")
)

// Class names declared by the content model.
var (
	TypeCmObject      = qname.New(ContentNamespace, "cmobject")
	TypeFolder        = qname.New(ContentNamespace, "folder")
	TypeContent       = qname.New(ContentNamespace, "content")
	AspectTitled      = qname.New(ContentNamespace, "titled")
	AspectAuditable   = qname.New(ContentNamespace, "auditable")
	AspectVersionable = qname.New(ContentNamespace, "versionable")
)

// Property names declared by the content model.
var (
	PropName    = qname.New(ContentNamespace, "name")
	PropTitle   = qname.New(ContentNamespace, "title")
	PropContent = qname.New(ContentNamespace, "content")
	PropCreated = qname.New(ContentNamespace, "created")
	PropCreator = qname.New(ContentNamespace, "creator")
)
