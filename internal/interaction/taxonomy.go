package interaction

// Group names
const (
	GroupAnticoagulants     = "anticoagulants"
	GroupAntiplatelets      = "antiplatelets"
	GroupThienopyridines    = "thienopyridines"
	GroupNSAIDs             = "nsaids"
	GroupSSRIs              = "ssris"
	GroupMAOIs              = "maois"
	GroupTricyclics         = "tricyclic_antidepressants"
	GroupTriptans           = "triptans"
	GroupOpioids            = "opioids"
	GroupBenzodiazepines    = "benzodiazepines"
	GroupACEInhibitors      = "ace_inhibitors"
	GroupARBs               = "angiotensin_receptor_blockers"
	GroupPotassiumSparing   = "potassium_sparing_diuretics"
	GroupPotassium          = "potassium_supplements"
	GroupThiazides          = "thiazide_diuretics"
	GroupLoopDiuretics      = "loop_diuretics"
	GroupStatins            = "statins"
	GroupMacrolides         = "macrolides"
	GroupAzoleAntifungals   = "azole_antifungals"
	GroupNitrates           = "nitrates"
	GroupPDE5Inhibitors     = "pde5_inhibitors"
	GroupDigoxin            = "digitalis"
	GroupAmiodarone         = "amiodarone"
	GroupLithium            = "lithium"
	GroupMethotrexate       = "methotrexate"
	GroupAntacids           = "antacids"
	GroupQuinolones         = "quinolones"
	GroupLevothyroxine      = "levothyroxine"
	GroupCorticosteroids    = "corticosteroids"
	GroupHypoglycemics      = "hypoglycemics"
	GroupBetaBlockers       = "beta_blockers"
	GroupProtonPump         = "proton_pump_inhibitors"
	GroupEnzymeInducers     = "enzyme_inducing_anticonvulsants"
	GroupRifamycins         = "rifamycins"
	GroupHormonalContracept = "hormonal_contraceptives"
)

// DefaultGroups is the built-in drug taxonomy. Members are generic and brand
// name fragments in Portuguese and English.
var DefaultGroups = []Group{
	{GroupAnticoagulants, []string{"varfarina", "warfarin", "marevan", "coumadin", "femprocumona", "heparina", "heparin", "enoxaparina", "clexane", "rivaroxabana", "rivaroxaban", "xarelto", "apixabana", "apixaban", "eliquis", "dabigatrana", "dabigatran", "pradaxa", "edoxabana"}},
	{GroupAntiplatelets, []string{"acido acetilsalicilico", "acetilsalicilico", "aspirina", "aspirin", "aas infantil", "aas protect", "clopidogrel", "plavix", "ticagrelor", "brilinta", "prasugrel", "ticlopidina"}},
	{GroupThienopyridines, []string{"clopidogrel", "plavix", "prasugrel", "ticlopidina"}},
	{GroupNSAIDs, []string{"ibuprofeno", "ibuprofen", "advil", "alivium", "diclofenaco", "diclofenac", "voltaren", "cataflam", "naproxeno", "naproxen", "cetoprofeno", "profenid", "nimesulida", "meloxicam", "piroxicam", "celecoxibe", "celecoxib", "etoricoxibe", "arcoxia", "indometacina"}},
	{GroupSSRIs, []string{"fluoxetina", "fluoxetine", "prozac", "sertralina", "sertraline", "zoloft", "paroxetina", "paroxetine", "citalopram", "escitalopram", "lexapro", "fluvoxamina"}},
	{GroupMAOIs, []string{"selegilina", "rasagilina", "tranilcipromina", "moclobemida", "fenelzina", "phenelzine"}},
	{GroupTricyclics, []string{"amitriptilina", "amitriptyline", "nortriptilina", "clomipramina", "imipramina"}},
	{GroupTriptans, []string{"sumatriptana", "sumatriptan", "naratriptana", "zolmitriptana", "rizatriptana"}},
	{GroupOpioids, []string{"tramadol", "tramal", "codeina", "codeine", "morfina", "morphine", "oxicodona", "oxycodone", "oxycontin", "fentanil", "fentanyl", "metadona", "methadone", "tapentadol"}},
	{GroupBenzodiazepines, []string{"diazepam", "valium", "clonazepam", "rivotril", "alprazolam", "frontal", "lorazepam", "bromazepam", "lexotan", "midazolam"}},
	{GroupACEInhibitors, []string{"enalapril", "captopril", "lisinopril", "ramipril", "perindopril"}},
	{GroupARBs, []string{"losartana", "losartan", "valsartana", "valsartan", "candesartana", "olmesartana", "telmisartana", "irbesartana"}},
	{GroupPotassiumSparing, []string{"espironolactona", "spironolactone", "aldactone", "amilorida", "triantereno", "eplerenona"}},
	{GroupPotassium, []string{"cloreto de potassio", "citrato de potassio", "potassium chloride", "slow-k"}},
	{GroupThiazides, []string{"hidroclorotiazida", "hydrochlorothiazide", "clortalidona", "indapamida"}},
	{GroupLoopDiuretics, []string{"furosemida", "furosemide", "lasix", "bumetanida"}},
	{GroupStatins, []string{"sinvastatina", "simvastatin", "atorvastatina", "atorvastatin", "lipitor", "rosuvastatina", "rosuvastatin", "crestor", "lovastatina", "pravastatina"}},
	{GroupMacrolides, []string{"claritromicina", "clarithromycin", "eritromicina", "erythromycin", "azitromicina", "azithromycin"}},
	{GroupAzoleAntifungals, []string{"cetoconazol", "ketoconazole", "fluconazol", "fluconazole", "itraconazol", "voriconazol"}},
	{GroupNitrates, []string{"isossorbida", "isosorbide", "monocordil", "isordil", "nitroglicerina", "nitroglycerin", "propatilnitrato"}},
	{GroupPDE5Inhibitors, []string{"sildenafila", "sildenafil", "viagra", "tadalafila", "tadalafil", "cialis", "vardenafila"}},
	{GroupDigoxin, []string{"digoxina", "digoxin"}},
	{GroupAmiodarone, []string{"amiodarona", "amiodarone", "ancoron"}},
	{GroupLithium, []string{"carbonato de litio", "lithium", "carbolitium"}},
	{GroupMethotrexate, []string{"metotrexato", "methotrexate"}},
	{GroupAntacids, []string{"hidroxido de aluminio", "hidroxido de magnesio", "carbonato de calcio", "mylanta", "estomazil"}},
	{GroupQuinolones, []string{"ciprofloxacino", "ciprofloxacin", "levofloxacino", "levofloxacin", "moxifloxacino", "norfloxacino"}},
	{GroupLevothyroxine, []string{"levotiroxina", "levothyroxine", "puran t4", "synthroid", "euthyrox"}},
	{GroupCorticosteroids, []string{"prednisona", "prednisone", "prednisolona", "dexametasona", "dexamethasone", "betametasona", "hidrocortisona"}},
	{GroupHypoglycemics, []string{"glibenclamida", "glimepirida", "gliclazida", "insulina", "insulin"}},
	{GroupBetaBlockers, []string{"propranolol", "atenolol", "metoprolol", "carvedilol", "bisoprolol"}},
	{GroupProtonPump, []string{"omeprazol", "omeprazole", "esomeprazol", "esomeprazole"}},
	{GroupEnzymeInducers, []string{"carbamazepina", "carbamazepine", "tegretol", "fenitoina", "phenytoin", "hidantal", "fenobarbital", "phenobarbital", "gardenal"}},
	{GroupRifamycins, []string{"rifampicina", "rifampin", "rifampicin"}},
	{GroupHormonalContracept, []string{"etinilestradiol", "ethinylestradiol", "levonorgestrel", "desogestrel", "gestodeno", "drospirenona"}},
}

// DefaultRules is the built-in table of group conflicts
var DefaultRules = []Rule{
	{GroupAnticoagulants, GroupNSAIDs, SeverityHigh, "Bleeding risk: NSAIDs impair platelet function and injure the gastric mucosa on top of anticoagulation."},
	{GroupAnticoagulants, GroupAntiplatelets, SeverityHigh, "Combined anticoagulant and antiplatelet therapy sharply raises the risk of major bleeding."},
	{GroupAnticoagulants, GroupAnticoagulants, SeverityHigh, "Two anticoagulants at once duplicate therapy and can cause serious bleeding."},
	{GroupAnticoagulants, GroupMacrolides, SeverityMedium, "Macrolide antibiotics can raise warfarin levels and the INR."},
	{GroupAnticoagulants, GroupAzoleAntifungals, SeverityHigh, "Azole antifungals inhibit anticoagulant metabolism and increase bleeding risk."},
	{GroupAnticoagulants, GroupAmiodarone, SeverityHigh, "Amiodarone potentiates anticoagulants; the dose usually has to be reduced and monitored."},
	{GroupAnticoagulants, GroupSSRIs, SeverityMedium, "SSRIs affect platelet serotonin and add to anticoagulant bleeding risk."},
	{GroupAnticoagulants, GroupQuinolones, SeverityMedium, "Quinolones can raise the INR of patients on warfarin."},
	{GroupAnticoagulants, GroupRifamycins, SeverityHigh, "Rifampicin strongly induces anticoagulant metabolism and can make therapy ineffective."},
	{GroupAntiplatelets, GroupNSAIDs, SeverityMedium, "Gastrointestinal bleeding risk; ibuprofen can also blunt the cardioprotective effect of aspirin."},
	{GroupNSAIDs, GroupNSAIDs, SeverityMedium, "Two NSAIDs duplicate therapy with added gastric and renal toxicity and no extra benefit."},
	{GroupNSAIDs, GroupACEInhibitors, SeverityMedium, "NSAIDs reduce the antihypertensive effect and can impair renal function."},
	{GroupNSAIDs, GroupARBs, SeverityMedium, "NSAIDs reduce the antihypertensive effect and can impair renal function."},
	{GroupNSAIDs, GroupLoopDiuretics, SeverityMedium, "NSAIDs blunt the diuretic response and stress the kidneys."},
	{GroupNSAIDs, GroupMethotrexate, SeverityHigh, "NSAIDs reduce methotrexate clearance and can cause severe toxicity."},
	{GroupNSAIDs, GroupLithium, SeverityHigh, "NSAIDs raise lithium levels towards toxicity."},
	{GroupNSAIDs, GroupCorticosteroids, SeverityMedium, "Combined use increases the risk of gastric ulcers and bleeding."},
	{GroupSSRIs, GroupMAOIs, SeverityHigh, "Risk of serotonin syndrome, which can be fatal."},
	{GroupSSRIs, GroupTriptans, SeverityMedium, "Additive serotonergic effect; watch for serotonin syndrome."},
	{GroupSSRIs, GroupOpioids, SeverityMedium, "Tramadol and some opioids add serotonergic load and lower the seizure threshold."},
	{GroupSSRIs, GroupTricyclics, SeverityMedium, "SSRIs raise tricyclic levels and add serotonergic effects."},
	{GroupMAOIs, GroupOpioids, SeverityHigh, "Severe reactions including serotonin syndrome and hypertensive crisis."},
	{GroupMAOIs, GroupTriptans, SeverityHigh, "MAO inhibitors block triptan metabolism; serotonin syndrome risk."},
	{GroupMAOIs, GroupTricyclics, SeverityHigh, "Risk of hypertensive crisis and serotonin syndrome."},
	{GroupOpioids, GroupBenzodiazepines, SeverityHigh, "Combined central nervous system depression can cause fatal respiratory depression."},
	{GroupBenzodiazepines, GroupBenzodiazepines, SeverityMedium, "Two benzodiazepines duplicate sedation and increase fall risk."},
	{GroupACEInhibitors, GroupPotassiumSparing, SeverityHigh, "Risk of dangerous hyperkalaemia."},
	{GroupACEInhibitors, GroupPotassium, SeverityHigh, "Risk of dangerous hyperkalaemia."},
	{GroupARBs, GroupPotassiumSparing, SeverityHigh, "Risk of dangerous hyperkalaemia."},
	{GroupARBs, GroupPotassium, SeverityHigh, "Risk of dangerous hyperkalaemia."},
	{GroupACEInhibitors, GroupARBs, SeverityMedium, "Dual renin-angiotensin blockade increases hypotension, hyperkalaemia and kidney injury."},
	{GroupPotassiumSparing, GroupPotassium, SeverityHigh, "Potassium supplements with potassium-sparing diuretics can cause severe hyperkalaemia."},
	{GroupNitrates, GroupPDE5Inhibitors, SeverityHigh, "Severe, potentially fatal hypotension."},
	{GroupStatins, GroupMacrolides, SeverityHigh, "Macrolides raise statin levels; risk of myopathy and rhabdomyolysis."},
	{GroupStatins, GroupAzoleAntifungals, SeverityHigh, "Azole antifungals raise statin levels; risk of myopathy and rhabdomyolysis."},
	{GroupStatins, GroupAmiodarone, SeverityMedium, "Amiodarone raises simvastatin levels; myopathy risk."},
	{GroupDigoxin, GroupAmiodarone, SeverityHigh, "Amiodarone roughly doubles digoxin levels; toxicity risk."},
	{GroupDigoxin, GroupLoopDiuretics, SeverityMedium, "Diuretic-induced hypokalaemia predisposes to digoxin toxicity."},
	{GroupDigoxin, GroupThiazides, SeverityMedium, "Diuretic-induced hypokalaemia predisposes to digoxin toxicity."},
	{GroupLithium, GroupThiazides, SeverityHigh, "Thiazides reduce lithium clearance and can cause lithium toxicity."},
	{GroupLithium, GroupACEInhibitors, SeverityMedium, "ACE inhibitors can raise lithium levels."},
	{GroupQuinolones, GroupAntacids, SeverityLow, "Antacids reduce quinolone absorption; separate the doses by at least two hours."},
	{GroupLevothyroxine, GroupAntacids, SeverityLow, "Antacids reduce levothyroxine absorption; separate the doses by at least four hours."},
	{GroupQuinolones, GroupCorticosteroids, SeverityMedium, "Increased risk of tendinitis and tendon rupture, especially in the elderly."},
	{GroupHypoglycemics, GroupBetaBlockers, SeverityLow, "Beta blockers can mask the warning signs of hypoglycaemia."},
	{GroupThienopyridines, GroupProtonPump, SeverityMedium, "Omeprazole and esomeprazole reduce clopidogrel activation."},
	{GroupEnzymeInducers, GroupHormonalContracept, SeverityMedium, "Enzyme-inducing anticonvulsants reduce contraceptive efficacy."},
	{GroupRifamycins, GroupHormonalContracept, SeverityMedium, "Rifampicin reduces contraceptive efficacy; use a barrier method."},
}

var defaultTaxonomy = New(DefaultGroups, DefaultRules)

// Default returns the built-in taxonomy
func Default() *Taxonomy {
	return defaultTaxonomy
}

// FindConflicts checks candidate against active using the built-in taxonomy
func FindConflicts(candidate string, active []Medication) []Finding {
	return defaultTaxonomy.FindConflicts(candidate, active)
}
