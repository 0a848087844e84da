package sqlinline

const QInsertAsset = `--sql a9c80966-9fe9-444a-b161-644eb2618655
insert into assets(
  id,
  role,
  reference_id,
  subject,
  storage_key,
  mime,
  created_at,
  updated_at
) values (
  $1::uuid,
  $2::text,
  nullif($3::text, '')::uuid,
  $4::text,
  $5::text,
  $6::text,
  now(),
  now()
) returning created_at, updated_at;
`

const QSelectAssetByID = `--sql e9aa225b-ef4f-44fa-bc5b-a9492b84011f
select
  id::text,
  role,
  coalesce(reference_id::text, ''),
  subject,
  storage_key,
  mime,
  coalesce(candidate_key, ''),
  coalesce(candidate_mime, ''),
  analysis,
  created_at,
  updated_at
from assets
where id = $1::uuid
limit 1;
`

const QUpdateAssetAnalysis = `--sql 36a93261-90cb-4c0a-bf02-bdec57dbb1a2
update assets
set analysis = $2::jsonb,
    updated_at = now()
where id = $1::uuid;
`

const QUpdateAssetCandidate = `--sql 51d015d9-7a84-42f9-8690-a4a9e037f109
update assets
set candidate_key = $2::text,
    candidate_mime = $3::text,
    updated_at = now()
where id = $1::uuid;
`
