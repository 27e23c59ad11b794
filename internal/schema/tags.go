package schema

import (
	"fmt"
	"strings"
)

// OgrType tags which typed table owns an Ogr code.
type OgrType int

const (
	OgrRome        OgrType = 0
	OgrEnvTravail  OgrType = 1
	OgrCompetence  OgrType = 2
	OgrAppellation OgrType = 3
	OgrActivite    OgrType = 4
)

// OgrTypes lists the five typed kinds in tag order.
var OgrTypes = []OgrType{OgrRome, OgrEnvTravail, OgrCompetence, OgrAppellation, OgrActivite}

// Entity returns the typed table owning codes of this kind.
func (t OgrType) Entity() *Entity {
	switch t {
	case OgrRome:
		return Rome
	case OgrEnvTravail:
		return EnvTravail
	case OgrCompetence:
		return Competence
	case OgrAppellation:
		return Appellation
	case OgrActivite:
		return Activite
	}
	return nil
}

// String returns the table name of the kind, which is also the key used when
// an item of this kind is attached to an assembled tree node.
func (t OgrType) String() string {
	if e := t.Entity(); e != nil {
		return e.Name
	}
	return fmt.Sprintf("OgrType(%d)", int(t))
}

// Valid reports whether t is one of the five typed kinds.
func (t OgrType) Valid() bool { return t.Entity() != nil }

// NodeKind is the kind of an arborescence node.
type NodeKind int

const (
	Racine  NodeKind = 0
	Noeud   NodeKind = 1
	Feuille NodeKind = 2
)

var nodeKindLabels = map[NodeKind]string{
	Racine:  "RACINE",
	Noeud:   "NOEUD",
	Feuille: "FEUILLE",
}

func (k NodeKind) String() string {
	if s, ok := nodeKindLabels[k]; ok {
		return s
	}
	return fmt.Sprintf("NodeKind(%d)", int(k))
}

// ParseNodeKind resolves a node kind from its label (RACINE, NOEUD, FEUILLE).
func ParseNodeKind(label string) (NodeKind, error) {
	l := strings.ToUpper(strings.TrimSpace(label))
	for k, s := range nodeKindLabels {
		if s == l {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown node kind %q", label)
}

// MobiliteType distinguishes close mobilities from evolution mobilities.
type MobiliteType int

const (
	Proche      MobiliteType = 0
	SiEvolution MobiliteType = 1
)

// MobiliteTypes lists the mobility kinds in load order.
var MobiliteTypes = []MobiliteType{Proche, SiEvolution}

// String returns the XML section name of the kind.
func (m MobiliteType) String() string {
	switch m {
	case Proche:
		return "proche"
	case SiEvolution:
		return "si_evolution"
	}
	return fmt.Sprintf("MobiliteType(%d)", int(m))
}
