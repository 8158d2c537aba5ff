package datatypes

import "github.com/c360studio/semdict/qname"

// Namespace is the IRI of the builtin data type namespace.
const Namespace = "https://semdict.dev/model/datatype/1.0"

// Prefix is the conventional prefix for Namespace.
const Prefix = "d"

// ModelName is the local name of the model declaring the builtin types.
const ModelName = "datatypes"

// Builtin data type names.
var (
	Any      = qname.New(Namespace, "any")
	Text     = qname.New(Namespace, "text")
	MLText   = qname.New(Namespace, "mltext")
	Content  = qname.New(Namespace, "content")
	Int      = qname.New(Namespace, "int")
	Long     = qname.New(Namespace, "long")
	Float    = qname.New(Namespace, "float")
	Double   = qname.New(Namespace, "double")
	Date     = qname.New(Namespace, "date")
	DateTime = qname.New(Namespace, "datetime")
	Boolean  = qname.New(Namespace, "boolean")
	QName    = qname.New(Namespace, "qname")
	NodeRef  = qname.New(Namespace, "noderef")
	Locale   = qname.New(Namespace, "locale")
)

// Value kinds carried by DataType.Kind.
const (
	KindString  = "string"
	KindInt     = "int64"
	KindFloat   = "float64"
	KindTime    = "time"
	KindBool    = "bool"
	KindContent = "content"
	KindAny     = "any"
)

// IsNumeric reports whether values of kind compare numerically.
func IsNumeric(kind string) bool {
	return kind == KindInt || kind == KindFloat
}
