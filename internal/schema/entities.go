package schema

import "fmt"

func ogrKey() Field {
	return Field{Name: OgrField, Kind: PrimaryForeignKey, Type: TypeInt, Source: "code_ogr", Ref: Ref{"ogr", "code"}, Required: true}
}

func text(name string) Field { return Field{Name: name, Type: TypeText} }

func integer(name string) Field { return Field{Name: name, Type: TypeInt} }

func fk(name, source, table, column string) Field {
	return Field{Name: name, Kind: ForeignKey, Type: TypeInt, Source: source, Ref: Ref{table, column}, Required: true}
}

func ogrType(t OgrType) *OgrType { return &t }

var (
	Ogr = &Entity{
		Name: "ogr",
		Fields: []Field{
			{Name: "code", Kind: PrimaryKey, Type: TypeInt, Required: true},
			integer("type"),
		},
	}

	EnvTravail = &Entity{
		Name:   "env_travail",
		Fields: []Field{ogrKey(), text("libelle_env_travail"), text("libelle")},
		Ogr:    ogrType(OgrEnvTravail),
	}

	Competence = &Entity{
		Name:   "competence",
		Fields: []Field{ogrKey(), text("libelle_competence"), text("libelle")},
		Ogr:    ogrType(OgrCompetence),
	}

	Appellation = &Entity{
		Name:   "appellation",
		Fields: []Field{ogrKey(), text("libelle_appellation"), text("libelle"), text("libelle_court")},
		Ogr:    ogrType(OgrAppellation),
	}

	Activite = &Entity{
		Name: "activite",
		Fields: []Field{
			ogrKey(),
			text("libelle_activite"),
			text("libelle"),
			text("libelle_application"),
			text("libelle_en_tete_rgpmt"),
			text("libelle_impression"),
		},
		Ogr: ogrType(OgrActivite),
	}

	Rome = &Entity{
		Name:   "rome",
		Fields: []Field{ogrKey(), text("code_rome"), text("libelle")},
		Ogr:    ogrType(OgrRome),
	}

	RomeAppellation = &Entity{
		Name: "rome_appellation",
		Fields: []Field{
			fk("rome", "", "rome", OgrField),
			fk("appellation", "code_ogr", "appellation", OgrField),
			integer("priorisation"),
		},
	}

	RomeEnvTravail = &Entity{
		Name: "rome_env_travail",
		Fields: []Field{
			fk("rome", "", "rome", OgrField),
			fk("env_travail", "code_ogr", "env_travail", OgrField),
			integer("priorisation"),
			integer("bloc"),
		},
	}

	RomeActivite = &Entity{
		Name: "rome_activite",
		Fields: []Field{
			fk("rome", "", "rome", OgrField),
			fk("activite", "code_ogr", "activite", OgrField),
			integer("position"),
			integer("priorisation"),
			integer("bloc"),
		},
	}

	RomeCompetence = &Entity{
		Name: "rome_competence",
		Fields: []Field{
			fk("rome", "", "rome", OgrField),
			fk("competence", "code_ogr", "competence", OgrField),
			integer("position"),
			integer("priorisation"),
			integer("bloc"),
		},
	}

	// Mobilite.cible is not read from the record as is: the loader resolves
	// it from the ROME code leading the code_rome_cible text.
	Mobilite = &Entity{
		Name: "mobilite",
		Fields: []Field{
			fk("origine", "", "rome", OgrField),
			fk("cible", "", "rome", OgrField),
			integer("type"),
		},
	}

	Fiche = &Entity{
		Name: "fiche",
		Fields: []Field{
			{Name: "rome", Kind: PrimaryForeignKey, Type: TypeInt, Ref: Ref{"rome", OgrField}, Required: true},
			integer("numero"),
			text("definition"),
			text("formations_associees"),
			text("condition_exercice_activite"),
			text("classement_emploi_metier"),
		},
	}

	Referentiel = &Entity{
		Name: "referentiel",
		Fields: []Field{
			{Name: OgrField, Kind: PrimaryKey, Type: TypeInt, Required: true},
			text("libelle"),
		},
	}

	Arborescence = &Entity{
		Name: "arborescence",
		Fields: []Field{
			{Name: OgrField, Kind: PrimaryKey, Type: TypeInt, Source: "code_ogr", Required: true},
			{Name: "pere", Kind: ForeignKey, Type: TypeInt, Ref: Ref{"arborescence", OgrField}},
			{Name: "referentiel", Kind: ForeignKey, Type: TypeInt, Ref: Ref{"referentiel", OgrField}, Required: true},
			{Name: "item", Kind: ForeignKey, Type: TypeInt, Source: "code_item_arbor_associe", Ref: Ref{"ogr", "code"}},
			integer("item_type"),
			integer("type_noeud"),
			text("code_noeud"),
			text("libelle"),
		},
	}

	LoadInfo = &Entity{
		Name:   "load_info",
		Fields: []Field{text("archive"), text("checksum"), text("loaded_at")},
	}
)

// Links lists the Rome link tables with the leaf kind each one targets.
var Links = []struct {
	Entity *Entity
	Target *Entity
	// Key is the link column referencing the target and the list key used
	// when a profile is assembled.
	Key string
}{
	{RomeAppellation, Appellation, "appellation"},
	{RomeActivite, Activite, "activite"},
	{RomeCompetence, Competence, "competence"},
	{RomeEnvTravail, EnvTravail, "env_travail"},
}

// All returns every entity in creation order: referenced tables come before
// the tables referencing them.
func All() []*Entity {
	return []*Entity{
		Ogr,
		Activite, Appellation, EnvTravail, Competence, Rome,
		RomeAppellation, RomeEnvTravail, RomeActivite, RomeCompetence,
		Mobilite, Fiche,
		Referentiel, Arborescence,
		LoadInfo,
	}
}

// Lookup returns the entity with the given table name.
func Lookup(name string) (*Entity, error) {
	for _, e := range All() {
		if e.Name == name {
			return e, nil
		}
	}
	return nil, fmt.Errorf("schema: unknown entity %q", name)
}
